package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5052", cfg.UDP.Address)
	assert.Equal(t, 30, cfg.Ingest.CadenceFPS)
	assert.Equal(t, 30*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 0.75, cfg.Matcher.Threshold)
}

func TestLoad_NoFiles(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "signbridge.yaml", `
udp:
  address: "0.0.0.0:6000"
  scale: 1000
ingest:
  cadence_fps: 15
  max_frame_age: 500ms
session:
  timeout: 1m
matcher:
  threshold: 0.9
  dynamic: false
plugins:
  dir: ./plugins
  default_plugin: caption-writer
  default_action: append
log:
  level: debug
`)

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:6000", cfg.UDP.Address)
	assert.Equal(t, 1000.0, cfg.UDP.Scale)
	assert.Equal(t, 100*time.Millisecond, cfg.UDP.PollInterval, "unset fields keep defaults")
	assert.Equal(t, 15, cfg.Ingest.CadenceFPS)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.MaxFrameAge)
	assert.Equal(t, time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 0.9, cfg.Matcher.Threshold)
	assert.False(t, cfg.Matcher.Dynamic)
	assert.Equal(t, "caption-writer", cfg.Plugins.DefaultPlugin)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		invalid bool
	}{
		{name: "unknown field", yaml: "udp:\n  adress: x\n"},
		{name: "bad duration", yaml: "session:\n  timeout: soon\n"},
		{name: "zero cadence", yaml: "ingest:\n  cadence_fps: 0\n", invalid: true},
		{name: "threshold above one", yaml: "matcher:\n  threshold: 1.5\n", invalid: true},
		{name: "min points above window", yaml: "matcher:\n  window_size: 5\n  min_points: 10\n", invalid: true},
		{name: "default plugin without action", yaml: "plugins:\n  default_plugin: x\n", invalid: true},
		{name: "bad log level", yaml: "log:\n  level: loud\n", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Options{File: writeFile(t, "c.yaml", tt.yaml)})
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig), "error: %v", err)
		})
	}

	_, err := Load(Options{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "c.yaml", "udp:\n  address: \":7000\"\nsession:\n  timeout: 10s\n")
	t.Setenv("SIGNBRIDGE_UDP_ADDRESS", ":7001")
	t.Setenv("SIGNBRIDGE_MATCH_DYNAMIC", "false")
	t.Setenv("SIGNBRIDGE_UDP_SCALE", "1000")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.UDP.Address)
	assert.Equal(t, 10*time.Second, cfg.Session.Timeout)
	assert.False(t, cfg.Matcher.Dynamic)
	assert.Equal(t, 1000.0, cfg.UDP.Scale)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "SIGNBRIDGE_SESSION_TIMEOUT=45s\nSIGNBRIDGE_DB_PATH=/tmp/bridge.db\n")
	// Real environment wins over the dotenv file.
	t.Setenv("SIGNBRIDGE_DB_PATH", "/var/lib/bridge.db")
	t.Cleanup(func() { os.Unsetenv("SIGNBRIDGE_SESSION_TIMEOUT") })

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Session.Timeout)
	assert.Equal(t, "/var/lib/bridge.db", cfg.Store.Path)

	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.NoError(t, err, "a missing dotenv file is ignored")
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("SIGNBRIDGE_CADENCE_FPS", "fast")
	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIGNBRIDGE_CADENCE_FPS")
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "SIGNBRIDGE_UDP_ADDRESS")
	assert.Contains(t, names, "SIGNBRIDGE_LOG_LEVEL")
	for _, n := range names {
		assert.Regexp(t, `^SIGNBRIDGE_[A-Z_]+$`, n)
	}
}
