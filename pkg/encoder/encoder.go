// Package encoder converts resources to and from their serialized form.
//
// Codecs are chosen per collection URI. The same codec serves the wire (the
// resource field of outbound events) and the byte-oriented stores, so a
// resource decoded from a store has the concrete type its handlers expect.
package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

type Codec interface {
	Encode(resource any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSON encodes resources as JSON and decodes them into a freshly allocated
// *T.
type JSON[T any] struct{}

func (JSON[T]) Encode(resource any) ([]byte, error) {
	return json.Marshal(resource)
}

func (JSON[T]) Decode(data []byte) (any, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// Map is the fallback codec. Objects decode to map[string]any with numbers
// kept as json.Number.
type Map struct{}

func (Map) Encode(resource any) ([]byte, error) {
	return json.Marshal(resource)
}

func (Map) Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return v, nil
}

// Registry maps collection URIs to codecs.
type Registry struct {
	mu       sync.RWMutex
	codecs   map[string]Codec
	fallback Codec
}

// NewRegistry returns a registry that falls back to fallback, or to Map when
// fallback is nil.
func NewRegistry(fallback Codec) *Registry {
	if fallback == nil {
		fallback = Map{}
	}
	return &Registry{codecs: make(map[string]Codec), fallback: fallback}
}

func (r *Registry) Register(collection string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[collection] = c
}

// For returns the codec of collection. A nil registry yields Map.
func (r *Registry) For(collection string) Codec {
	if r == nil {
		return Map{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.codecs[collection]; ok {
		return c
	}
	return r.fallback
}

// Encode serializes resource with the codec of collection.
func (r *Registry) Encode(collection string, resource any) ([]byte, error) {
	b, err := r.For(collection).Encode(resource)
	if err != nil {
		return nil, fmt.Errorf("encode resource of %s: %w", collection, err)
	}
	return b, nil
}

func (r *Registry) Decode(collection string, data []byte) (any, error) {
	return r.For(collection).Decode(data)
}
