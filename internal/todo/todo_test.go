package todo_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/the-dev-tools/socketapi/internal/todo"
	"github.com/the-dev-tools/socketapi/pkg/dispatch"
	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/fanout"
	"github.com/the-dev-tools/socketapi/pkg/logger/mocklogger"
	"github.com/the-dev-tools/socketapi/pkg/route"
	"github.com/the-dev-tools/socketapi/pkg/store"
	"github.com/the-dev-tools/socketapi/pkg/store/memory"
	"github.com/the-dev-tools/socketapi/pkg/subscription"
	"github.com/the-dev-tools/socketapi/pkg/wire"
)

type inbox struct {
	mu     sync.Mutex
	frames map[string][]gjson.Result
}

func (b *inbox) Deliver(_ context.Context, connID string, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[connID] = append(b.frames[connID], gjson.ParseBytes(frame))
	return nil
}

func (b *inbox) last(connID string) gjson.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frames[connID]
	if len(f) == 0 {
		return gjson.Result{}
	}
	return f[len(f)-1]
}

type fixture struct {
	engine *dispatch.Engine
	svc    *todo.Service
	store  store.Store
	inbox  *inbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := mocklogger.NewMockLogger()
	codecs := encoder.NewRegistry(nil)
	st := memory.New(codecs)
	routes := route.NewTable()
	svc := todo.New(st, logger)
	require.NoError(t, svc.Register(routes, codecs))

	registry := subscription.New()
	in := &inbox{frames: map[string][]gjson.Result{}}
	out := fanout.New(registry, in, wire.NewEncoder(codecs), logger)
	return &fixture{
		engine: dispatch.New(routes, registry, st, out, dispatch.WithLogger(logger)),
		svc:    svc,
		store:  st,
		inbox:  in,
	}
}

func (f *fixture) send(frame string) error {
	return f.engine.Handle(context.Background(), "client", []byte(frame))
}

func TestTodoLifecycle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.send(`{"event":"subscribe","data":"/todo/"}`))
	assert.Equal(t, "[]", f.inbox.last("client").Get("data.resources").Raw)

	require.NoError(t, f.send(`{"event":"create","data":{"uri":"/todo/","attributes":{"text":"  buy milk "}}}`))
	created := f.inbox.last("client")
	require.Equal(t, "create", created.Get("event").Str)
	assert.Equal(t, "buy milk", created.Get("data.resource.text").Str)
	assert.False(t, created.Get("data.resource.completed").Bool())
	id := created.Get("data.resource.id").Str
	require.Len(t, id, 26)
	uri := todo.Collection + id

	require.NoError(t, f.send(`{"event":"patch","data":{"uri":"`+uri+`","patch":{"completed":true}}}`))
	patched := f.inbox.last("client")
	require.Equal(t, "patch", patched.Get("event").Str)
	assert.JSONEq(t, `{"completed":true}`, patched.Get("data.patch").Raw)

	res, err := f.store.Get(context.Background(), store.KeyOf(uri))
	require.NoError(t, err)
	got := res.(*todo.Todo)
	assert.True(t, got.Completed)
	assert.Equal(t, "buy milk", got.Text)

	require.NoError(t, f.send(`{"event":"get","data":"/todo/"}`))
	list := f.inbox.last("client")
	assert.Equal(t, int64(1), list.Get("data.resources.#").Int())

	require.NoError(t, f.send(`{"event":"delete","data":{"uri":"`+uri+`"}}`))
	assert.Equal(t, "delete", f.inbox.last("client").Get("event").Str)
	_, err = f.store.Get(context.Background(), store.KeyOf(uri))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTodoValidation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.send(`{"event":"create","data":{"uri":"/todo/","attributes":{"text":"x"}}}`))
	// not subscribed: read the id back from the store
	list, err := f.store.List(context.Background(), todo.Collection)
	require.NoError(t, err)
	require.Len(t, list, 1)
	uri := todo.Collection + list[0].(*todo.Todo).ResourceID()

	for _, frame := range []string{
		`{"event":"create","data":{"uri":"/todo/","attributes":{"text":1}}}`,
		`{"event":"create","data":{"uri":"/todo/","attributes":{"colour":"red"}}}`,
		`{"event":"patch","data":{"uri":"` + uri + `","patch":{"completed":"yes"}}}`,
		`{"event":"patch","data":{"uri":"` + uri + `","patch":{"id":"other"}}}`,
	} {
		require.Error(t, f.send(frame), frame)
		last := f.inbox.last("client")
		assert.Equal(t, "api_error", last.Get("event").Str, frame)
		assert.Equal(t, "InvalidRequestError", last.Get("data.error").Str, frame)
	}

	// ids are ULIDs, anything else is outside every route
	require.Error(t, f.send(`{"event":"patch","data":{"uri":"/todo/42","patch":{}}}`))
	assert.Equal(t, "RouteNotFoundError", f.inbox.last("client").Get("data.error").Str)
}

func TestTodoAttributes(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), &route.Request{URI: todo.Collection}, map[string]any{"text": "a", "completed": true})
	require.NoError(t, err)
	td := res.(*todo.Todo)

	v, ok := td.Attribute("completed")
	require.True(t, ok)
	assert.Equal(t, true, v)
	v, ok = td.Attribute("id")
	require.True(t, ok)
	assert.Equal(t, td.ID.String(), v)
	_, ok = td.Attribute("owner")
	assert.False(t, ok)
}

func TestSeed(t *testing.T) {
	f := newFixture(t)
	seed, err := todo.ParseSeed([]byte("todos:\n  - text: first\n  - text: second\n    completed: true\n"))
	require.NoError(t, err)

	n, err := f.svc.Seed(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.store.List(context.Background(), todo.Collection)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].(*todo.Todo).Text)
	assert.True(t, list[1].(*todo.Todo).Completed)

	_, err = todo.ParseSeed([]byte("todos: [unclosed"))
	require.Error(t, err)
	_, err = todo.LoadSeed("/does/not/exist.yaml")
	require.Error(t, err)
}
