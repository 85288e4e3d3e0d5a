package mocklogger

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Entry is one captured log record with its attributes flattened to strings.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

type store struct {
	mu      sync.Mutex
	entries []Entry
}

// MockHandler is a mock implementation of slog.Handler that records every
// record it receives. Handlers derived via WithAttrs share the same store.
type MockHandler struct {
	store *store
	attrs []slog.Attr
	group string
}

// Enabled implements slog.Handler.
func (h *MockHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (h *MockHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: make(map[string]string, r.NumAttrs()+len(h.attrs))}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		e.Attrs[key] = a.Value.String()
		return true
	})

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.entries = append(h.store.entries, e)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *MockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MockHandler{store: h.store, attrs: append(slices.Clone(h.attrs), attrs...), group: h.group}
}

// WithGroup implements slog.Handler.
func (h *MockHandler) WithGroup(name string) slog.Handler {
	return &MockHandler{store: h.store, attrs: h.attrs, group: name}
}

// Entries returns a copy of everything logged so far.
func (h *MockHandler) Entries() []Entry {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return slices.Clone(h.store.entries)
}

// Messages returns the messages logged at level or above.
func (h *MockHandler) Messages(level slog.Level) []string {
	var out []string
	for _, e := range h.Entries() {
		if e.Level >= level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Find returns the first entry with the given message.
func (h *MockHandler) Find(message string) (Entry, bool) {
	for _, e := range h.Entries() {
		if e.Message == message {
			return e, true
		}
	}
	return Entry{}, false
}

// NewMockLogger creates a new logger with the mock handler
func NewMockLogger() (*slog.Logger, *MockHandler) {
	handler := &MockHandler{store: &store{}}
	return slog.New(handler), handler
}
