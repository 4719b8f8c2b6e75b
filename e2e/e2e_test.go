package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signbridge/internal/app"
	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/config"
	"github.com/ayusman/signbridge/internal/dispatch"
	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/logging"
	"github.com/ayusman/signbridge/internal/transport"
)

// writeRecorderPlugin installs a plugin that appends every request to out.
func writeRecorderPlugin(t *testing.T, dir, out string) {
	t.Helper()
	pluginDir := filepath.Join(dir, "recorder")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))

	script := "#!/bin/sh\ncat >> '" + out + "'\necho >> '" + out + "'\necho '{\"success\":true}'\n"
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "recorder.sh"), []byte(script), 0o755))

	manifest := `{"name":"recorder","version":"1.0.0","executable":"recorder.sh","actions":["record"]}`
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0o644))
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestE2E_TrackerToConsumers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("plugin script needs a POSIX shell")
	}

	tmpDir := t.TempDir()
	pluginOut := filepath.Join(tmpDir, "plugin-requests.jsonl")
	writeRecorderPlugin(t, filepath.Join(tmpDir, "plugins"), pluginOut)

	cfg := config.Default()
	cfg.UDP.Address = "127.0.0.1:0"
	cfg.UDP.Scale = 1000
	cfg.HTTP.Address = "127.0.0.1:0"
	cfg.Store.Path = filepath.Join(tmpDir, "bridge.db")
	cfg.Plugins.Dir = filepath.Join(tmpDir, "plugins")
	cfg.Plugins.DefaultPlugin = "recorder"
	cfg.Plugins.DefaultAction = "record"
	require.NoError(t, cfg.Validate())

	bridge, err := app.New(cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Stop(context.Background())

	base := "http://" + bridge.HTTPAddr().String()

	t.Run("Health", func(t *testing.T) {
		var health map[string]any
		require.Equal(t, http.StatusOK, getJSON(t, base+"/api/health", &health))
		assert.Equal(t, "idle", health["session"])
		assert.Equal(t, "builtin-1", health["vocabulary_version"])
	})

	feedURL := "ws" + strings.TrimPrefix(base, "http") + "/api/recognitions"
	feed, _, err := websocket.DefaultDialer.Dial(feedURL, nil)
	require.NoError(t, err)
	defer feed.Close()
	require.Eventually(t, func() bool { return bridge.Feed().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	var started struct {
		State     string `json:"state"`
		SessionID string `json:"session_id"`
	}
	require.Equal(t, http.StatusOK, postJSON(t, base+"/api/session/start", nil, &started))
	require.Equal(t, "active", started.State)
	require.NotEmpty(t, started.SessionID)

	sender, err := transport.Dial(bridge.UDPAddr().String(), codec.Codec{Scale: 1000})
	require.NoError(t, err)
	defer sender.Close()

	// Malformed datagrams are dropped without disturbing the stream.
	require.NoError(t, sender.SendRaw([]byte("not, a, frame")))
	for i := 0; i < 10; i++ {
		f := landmark.VSign()
		f.Timestamp = time.Now()
		f.Side = landmark.SideLeft
		f.SessionID = started.SessionID
		require.NoError(t, sender.Send(f))
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("WebsocketFeed", func(t *testing.T) {
		feed.SetReadDeadline(time.Now().Add(3 * time.Second))
		var e dispatch.Event
		require.NoError(t, feed.ReadJSON(&e))
		assert.Equal(t, "Thank you", e.SignName)
		assert.Equal(t, "polite", e.Category)
		assert.Equal(t, started.SessionID, e.SessionID)
		assert.Equal(t, "Left", e.Side)
		assert.Greater(t, e.Confidence, 0.99)
	})

	t.Run("ConversationLog", func(t *testing.T) {
		var conv struct {
			Recognitions []struct {
				SignName  string `json:"sign_name"`
				SessionID string `json:"session_id"`
			} `json:"recognitions"`
		}
		require.Eventually(t, func() bool {
			return getJSON(t, base+"/api/conversation/"+started.SessionID, &conv) == http.StatusOK &&
				len(conv.Recognitions) > 0
		}, 3*time.Second, 20*time.Millisecond)
		assert.Equal(t, "Thank you", conv.Recognitions[0].SignName)
		assert.Equal(t, started.SessionID, conv.Recognitions[0].SessionID)
	})

	t.Run("Plugin", func(t *testing.T) {
		require.Eventually(t, func() bool {
			data, err := os.ReadFile(pluginOut)
			return err == nil && bytes.Contains(data, []byte(`"sign":"Thank you"`))
		}, 5*time.Second, 20*time.Millisecond)

		data, err := os.ReadFile(pluginOut)
		require.NoError(t, err)
		first := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
		var req map[string]any
		require.NoError(t, json.Unmarshal([]byte(first), &req))
		assert.Equal(t, "record", req["action"])
		assert.Equal(t, started.SessionID, req["session_id"])
	})

	t.Run("Stats", func(t *testing.T) {
		var stats app.Stats
		require.Equal(t, http.StatusOK, getJSON(t, base+"/api/stats", &stats))
		assert.GreaterOrEqual(t, stats.Ingest.Malformed, uint64(1))
		assert.GreaterOrEqual(t, stats.Pipeline.Matched, uint64(1))
		assert.Contains(t, stats.Dispatch, "plugin")
	})

	t.Run("StopSession", func(t *testing.T) {
		require.Equal(t, http.StatusOK, postJSON(t, base+"/api/session/stop", map[string]string{"session_id": started.SessionID}, nil))

		var state map[string]any
		require.Equal(t, http.StatusOK, getJSON(t, base+"/api/session", &state))
		assert.Equal(t, "idle", state["state"])

		// Session history is written asynchronously.
		require.Eventually(t, func() bool {
			var list struct {
				Sessions []map[string]any `json:"sessions"`
			}
			return getJSON(t, base+"/api/conversation", &list) == http.StatusOK &&
				len(list.Sessions) == 1 && list.Sessions[0]["end_reason"] == "stop"
		}, 3*time.Second, 20*time.Millisecond)
	})
}
