package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/socketapi/internal/api"
	"github.com/the-dev-tools/socketapi/internal/config"
	"github.com/the-dev-tools/socketapi/internal/todo"
	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/logger/mocklogger"
	"github.com/the-dev-tools/socketapi/pkg/store/memory"
	"github.com/the-dev-tools/socketapi/pkg/store/redisstore"
	"github.com/the-dev-tools/socketapi/pkg/store/sqlstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("todos:\n  - text: first\n  - text: second\n    completed: true\n"), 0o600))
	return &config.Config{
		Server:    config.ServerConfig{Mode: api.ServerModeTCP, Path: "/live"},
		Log:       config.LogConfig{Level: "debug", Format: config.LogText},
		Store:     config.StoreConfig{Driver: config.StoreMemory},
		Seed:      seed,
		Transport: config.TransportConfig{SendBuffer: 16},
	}
}

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func TestAppServesSeededTodos(t *testing.T) {
	logger, _ := mocklogger.NewMockLogger()
	app, err := NewApp(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	srv := httptest.NewServer(api.NewMux(app.Services))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		app.Hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/live", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"event": "subscribe", "data": todo.Collection}))
	var state frame
	require.NoError(t, wsjson.Read(ctx, c, &state))
	require.Equal(t, "state", state.Event)
	resources, ok := state.Data["resources"].([]any)
	require.True(t, ok)
	require.Len(t, resources, 2)
	assert.Equal(t, "first", resources[0].(map[string]any)["text"])
	assert.Equal(t, true, resources[1].(map[string]any)["completed"])

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","connections":1,"subscriptions":1}`, string(body))
}

func TestAppRejectsBadSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Seed = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	codecs := encoder.NewRegistry(nil)

	st, closeFn, err := openStore(ctx, config.StoreConfig{Driver: config.StoreMemory}, codecs)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)
	require.NoError(t, closeFn())

	dsn := fmt.Sprintf("file:testdb_%s?mode=memory&cache=shared", ulid.Make().String())
	st, closeFn, err = openStore(ctx, config.StoreConfig{Driver: config.StoreSQLite, DSN: dsn}, codecs)
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, st)
	require.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	st, closeFn, err = openStore(ctx, config.StoreConfig{Driver: config.StoreRedis, RedisAddr: mr.Addr()}, codecs)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.Store{}, st)
	require.NoError(t, closeFn())

	_, _, err = openStore(ctx, config.StoreConfig{Driver: "etcd"}, codecs)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "socketapi "+Version+"\n", out.String())
}

func TestServeRejectsInvalidFlags(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	require.Error(t, cmd.Execute())

	path := filepath.Join(t.TempDir(), "socketapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))
	cmd = NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--config", path, "--store", "etcd"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
