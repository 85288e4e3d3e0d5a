package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/errmap"
	"github.com/the-dev-tools/socketapi/pkg/wire"
)

func requireInvalidRequest(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, errmap.CodeInvalidRequest, errmap.Map(err).Code, err.Error())
}

func TestDecode(t *testing.T) {
	req, err := wire.Decode([]byte(`{"event":"create","data":{"uri":"/items/","attributes":{"name":"x","n":2}}}`))
	require.NoError(t, err)
	assert.Equal(t, wire.OpCreate, req.Op)
	assert.Equal(t, "/items/", req.URI)
	assert.Equal(t, map[string]any{"name": "x", "n": float64(2)}, req.Attributes)

	req, err = wire.Decode([]byte(`{"event":"patch","data":{"uri":"/items/1","patch":{"foo":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": float64(1)}, req.Patch)

	req, err = wire.Decode([]byte(`{"event":"create","data":{"uri":"/items/"}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, req.Attributes)
}

func TestDecodeBareURI(t *testing.T) {
	for _, op := range []string{"subscribe", "unsubscribe", "get"} {
		req, err := wire.Decode([]byte(`{"event":"` + op + `","data":"/items/7"}`))
		require.NoError(t, err, op)
		assert.Equal(t, "/items/7", req.URI)
	}

	_, err := wire.Decode([]byte(`{"event":"delete","data":"/items/7"}`))
	requireInvalidRequest(t, err)
}

func TestDecodeMissingURI(t *testing.T) {
	for _, frame := range []string{
		`{"event":"delete"}`,
		`{"event":"delete","data":null}`,
		`{"event":"patch","data":{"patch":{"a":1}}}`,
		`{"event":"create","data":{"uri":null}}`,
	} {
		req, err := wire.Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Empty(t, req.URI, frame)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, frame := range []string{
		`not json`,
		`[1,2]`,
		`{"data":{}}`,
		`{"event":"explode","data":{}}`,
		`{"event":42}`,
		`{"event":"patch","data":[1]}`,
		`{"event":"patch","data":{"uri":5}}`,
		`{"event":"patch","data":{"uri":"/a/1","patch":"x"}}`,
		`{"event":"create","data":{"uri":"/a/","attributes":[1]}}`,
	} {
		_, err := wire.Decode([]byte(frame))
		requireInvalidRequest(t, err)
	}
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemCodec struct{ encoder.JSON[item] }

// Encode renders items in a compact positional form to prove the codec is
// picked per collection.
func (itemCodec) Encode(v any) ([]byte, error) {
	it := v.(*item)
	return []byte(`["` + it.ID + `","` + it.Name + `"]`), nil
}

func TestMarshal(t *testing.T) {
	codecs := encoder.NewRegistry(nil)
	codecs.Register("/items/", itemCodec{})
	enc := wire.NewEncoder(codecs)

	tests := []struct {
		name string
		evt  wire.Event
		want string
	}{
		{"create", wire.CreateEvent("/items/", &item{ID: "1", Name: "x"}), `{"event":"create","data":{"uri":"/items/","resource":["1","x"]}}`},
		{"patch", wire.PatchEvent("/items/1", map[string]any{"foo": 1}), `{"event":"patch","data":{"uri":"/items/1","patch":{"foo":1}}}`},
		{"delete", wire.DeleteEvent("/items/1"), `{"event":"delete","data":{"uri":"/items/1"}}`},
		{"item state", wire.ItemState("/items/1", &item{ID: "1"}), `{"event":"state","data":{"uri":"/items/1","resource":["1",""]}}`},
		{"absent item state", wire.ItemState("/items/1", nil), `{"event":"state","data":{"uri":"/items/1","resource":null}}`},
		{"collection state", wire.CollectionState("/items/", []any{&item{ID: "1"}, &item{ID: "2"}}), `{"event":"state","data":{"uri":"/items/","resources":[["1",""],["2",""]]}}`},
		{"empty collection", wire.CollectionState("/items/", nil), `{"event":"state","data":{"uri":"/items/","resources":[]}}`},
		{"fallback codec", wire.ItemState("/notes/n", map[string]any{"id": "n"}), `{"event":"state","data":{"uri":"/notes/n","resource":{"id":"n"}}}`},
		{"api error", wire.APIError("MissingURIError", "missing URI"), `{"event":"api_error","data":{"error":"MissingURIError","message":"missing URI"}}`},
		{"server error", wire.ServerError("KeyError", nil), `{"event":"server_error","data":{"error":"KeyError","message":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := enc.Marshal(tt.evt)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}

	_, err := enc.Marshal(wire.Event{Kind: "bogus"})
	require.Error(t, err)
}
