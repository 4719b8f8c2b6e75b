// Package main provides a caption plugin.
// It appends each recognized sign as one line of a caption file, which a
// subtitle overlay or screen reader can follow.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	EventID    string          `json:"event_id"`
	Sign       string          `json:"sign"`
	Category   string          `json:"category"`
	Confidence float64         `json:"confidence"`
	SessionID  string          `json:"session_id"`
	Timestamp  int64           `json:"timestamp"`
	Config     json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-binding plugin configuration.
type Config struct {
	File           string `json:"file"`
	WithConfidence bool   `json:"with_confidence"`
}

const defaultFile = "captions.txt"

func main() {
	resp := handle(os.Stdin)
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}

	cfg := Config{File: defaultFile}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return Response{Error: fmt.Sprintf("failed to parse config: %v", err)}
		}
	}
	if cfg.File == "" {
		cfg.File = defaultFile
	}

	switch req.Action {
	case "append":
		if req.Sign == "" {
			return Response{Error: "sign is required"}
		}
		if err := appendCaption(cfg, req); err != nil {
			return Response{Error: fmt.Sprintf("append failed: %v", err)}
		}
	case "clear":
		if err := os.Truncate(cfg.File, 0); err != nil && !os.IsNotExist(err) {
			return Response{Error: fmt.Sprintf("clear failed: %v", err)}
		}
	default:
		return Response{Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}

	data, _ := json.Marshal(map[string]string{"file": cfg.File})
	return Response{Success: true, Data: data}
}

// formatCaption renders one caption line.
func formatCaption(cfg Config, req Request) string {
	ts := time.UnixMilli(req.Timestamp).UTC().Format("15:04:05.000")
	if cfg.WithConfidence {
		return fmt.Sprintf("[%s] %s (%.0f%%)\n", ts, req.Sign, req.Confidence*100)
	}
	return fmt.Sprintf("[%s] %s\n", ts, req.Sign)
}

func appendCaption(cfg Config, req Request) error {
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(formatCaption(cfg, req)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
