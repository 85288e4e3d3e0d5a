// Package memory is a process-local store. Resources are kept in encoded
// form so callers never share a value with the store: a resource mutated by a
// handler only changes stored state once it is saved.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

type collection struct {
	order []string
	items map[string][]byte
}

type Store struct {
	mu          sync.RWMutex
	codecs      *encoder.Registry
	collections map[string]*collection
}

var _ store.Store = (*Store)(nil)

func New(codecs *encoder.Registry) *Store {
	return &Store{codecs: codecs, collections: make(map[string]*collection)}
}

func (s *Store) Get(_ context.Context, key store.Key) (any, error) {
	s.mu.RLock()
	data, ok := s.lookupLocked(key)
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.codecs.Decode(key.Collection, data)
}

func (s *Store) lookupLocked(key store.Key) ([]byte, bool) {
	c, ok := s.collections[key.Collection]
	if !ok {
		return nil, false
	}
	data, ok := c.items[key.ID]
	return data, ok
}

func (s *Store) List(_ context.Context, name string) ([]any, error) {
	s.mu.RLock()
	var raw [][]byte
	if c, ok := s.collections[name]; ok {
		raw = make([][]byte, 0, len(c.order))
		for _, id := range c.order {
			raw = append(raw, c.items[id])
		}
	}
	s.mu.RUnlock()

	out := make([]any, 0, len(raw))
	for _, data := range raw {
		v, err := s.codecs.Decode(name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Save(_ context.Context, key store.Key, resource any) error {
	data, err := s.codecs.Encode(key.Collection, resource)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[key.Collection]
	if !ok {
		c = &collection{items: make(map[string][]byte)}
		s.collections[key.Collection] = c
	}
	if _, exists := c.items[key.ID]; !exists {
		c.order = append(c.order, key.ID)
	}
	c.items[key.ID] = data
	return nil
}

func (s *Store) Delete(_ context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[key.Collection]
	if !ok {
		return nil
	}
	if _, exists := c.items[key.ID]; !exists {
		return nil
	}
	delete(c.items, key.ID)
	c.order = slices.DeleteFunc(c.order, func(id string) bool { return id == key.ID })
	return nil
}
