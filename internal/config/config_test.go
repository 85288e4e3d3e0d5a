package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "socketapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	homedir.Reset()
	t.Cleanup(homedir.Reset)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Server.Mode)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/socket", cfg.Server.Path)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.False(t, cfg.Debug)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
  path: /ws
debug: true
store:
  driver: sqlite
  dsn: /tmp/todos.db
log:
  format: json
`)
	t.Setenv("SOCKETAPI_SERVER_PORT", "9100")
	t.Setenv("SOCKETAPI_TRANSPORT_SEND_BUFFER", "8")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.True(t, cfg.Debug)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/todos.db", cfg.Store.DSN)
	assert.Equal(t, LogJSON, cfg.Log.Format)
	assert.Equal(t, 8, cfg.Transport.SendBuffer)

	apiCfg := cfg.Server.API()
	assert.Equal(t, "9100", apiCfg.Port)
	assert.Equal(t, "tcp", apiCfg.Mode)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	for name, body := range map[string]string{
		"mode":   "server:\n  mode: pipe\n",
		"path":   "server:\n  path: ws\n",
		"driver": "store:\n  driver: postgres\n",
		"format": "log:\n  format: xml\n",
		"level":  "log:\n  level: loud\n",
		"buffer": "transport:\n  send_buffer: 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: LogJSON}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "conn", "c1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"conn":"c1"`)

	buf.Reset()
	logger, err = LogConfig{Level: "debug", Format: LogText}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}
