package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func request(t *testing.T, action, sign, file string, withConfidence bool) *strings.Reader {
	t.Helper()
	cfg, _ := json.Marshal(Config{File: file, WithConfidence: withConfidence})
	data, err := json.Marshal(Request{
		Action:     action,
		Sign:       sign,
		Confidence: 0.875,
		Timestamp:  1700000000000,
		Config:     cfg,
	})
	if err != nil {
		t.Fatal(err)
	}
	return strings.NewReader(string(data))
}

func TestHandle_AppendAndClear(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out", "captions.txt")

	if resp := handle(request(t, "append", "Hello", file, false)); !resp.Success {
		t.Fatalf("append failed: %s", resp.Error)
	}
	if resp := handle(request(t, "append", "Thank you", file, true)); !resp.Success {
		t.Fatalf("append failed: %s", resp.Error)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	want := "[22:13:20.000] Hello\n[22:13:20.000] Thank you (88%)\n"
	if string(data) != want {
		t.Errorf("captions = %q, want %q", data, want)
	}

	if resp := handle(request(t, "clear", "", file, false)); !resp.Success {
		t.Fatalf("clear failed: %s", resp.Error)
	}
	if data, _ := os.ReadFile(file); len(data) != 0 {
		t.Errorf("file not cleared: %q", data)
	}
}

func TestHandle_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "captions.txt")

	tests := []struct {
		name string
		in   *strings.Reader
	}{
		{"invalid json", strings.NewReader("not json")},
		{"unknown action", request(t, "delete", "Hello", file, false)},
		{"missing sign", request(t, "append", "", file, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := handle(tt.in); resp.Success || resp.Error == "" {
				t.Errorf("expected failure, got %+v", resp)
			}
		})
	}
}
