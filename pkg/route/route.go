// Package route maps URI patterns and verbs to resource handlers.
//
// Patterns are slash-delimited templates. A trailing slash denotes a
// collection ("/todo/"), no trailing slash an item ("/todo/<id>").
// Placeholders span a whole segment and may carry a converter:
//
//	<id>          any segment, kept as a string
//	<string:id>   same as above
//	<int:id>      base-10 integer, converted to int64
//	<uuid:id>     RFC 4122 UUID, converted to uuid.UUID
//	<ulid:id>     ULID, converted to ulid.ULID
//
// The Table is built during startup and passed to the components that need
// it; there is no package-level registry.
package route

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/the-dev-tools/socketapi/pkg/errmap"
)

type Verb uint8

const (
	Create Verb = iota
	Get
	Patch
	Delete
)

func (v Verb) String() string {
	switch v {
	case Create:
		return "create"
	case Get:
		return "get"
	case Patch:
		return "patch"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("verb(%d)", uint8(v))
	}
}

// Params holds the converted placeholder values of a resolved URI.
type Params map[string]any

// String returns the named parameter formatted as a string.
func (p Params) String(name string) string {
	v, ok := p[name]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the named parameter of an <int:...> placeholder.
func (p Params) Int(name string) (int64, bool) {
	n, ok := p[name].(int64)
	return n, ok
}

// Request describes the operation a handler is invoked for.
type Request struct {
	ConnID string
	URI    string
	Params Params
}

type (
	// CreateFunc builds a new resource from the request attributes. The id
	// it carries must be new to the collection; reusing one is an
	// InvalidRequestError.
	CreateFunc func(ctx context.Context, req *Request, attributes map[string]any) (any, error)
	// GetFunc returns the current state: a single resource (nil when absent)
	// for item URIs, a slice for collection URIs.
	GetFunc func(ctx context.Context, req *Request) (any, error)
	// PatchFunc mutates resource in place from the raw patch mapping.
	PatchFunc func(ctx context.Context, req *Request, resource any, patch map[string]any) error
	// DeleteFunc is invoked before the resource is removed.
	DeleteFunc func(ctx context.Context, req *Request, resource any) error
)

// Handler is one of CreateFunc, GetFunc, PatchFunc or DeleteFunc.
type Handler interface {
	verb() Verb
}

func (CreateFunc) verb() Verb { return Create }
func (GetFunc) verb() Verb    { return Get }
func (PatchFunc) verb() Verb  { return Patch }
func (DeleteFunc) verb() Verb { return Delete }

type entry struct {
	pattern  *pattern
	verb     Verb
	handlers []Handler
}

// Match is the result of a successful resolution.
type Match struct {
	Pattern  string
	Params   Params
	Handlers []Handler
}

// Table stores routes in registration order.
type Table struct {
	mu      sync.RWMutex
	entries []*entry
}

func NewTable() *Table {
	return &Table{}
}

// Register adds handler for (pattern, verb). CREATE requires a collection
// pattern, PATCH and DELETE an item pattern. PATCH handlers accumulate into a
// chain; any other verb accepts a single handler per pattern.
func (t *Table) Register(raw string, verb Verb, handler Handler) error {
	if handler == nil {
		return errmap.Newf(errmap.CodeInvalidPattern, "nil %s handler for %q", verb, raw)
	}
	if handler.verb() != verb {
		return errmap.Newf(errmap.CodeInvalidPattern, "%s handler registered as %s for %q", handler.verb(), verb, raw)
	}
	p, err := parsePattern(raw)
	if err != nil {
		return err
	}
	switch {
	case verb == Create && !p.collection:
		return errmap.Newf(errmap.CodeInvalidPattern, "create pattern %q must denote a collection", raw)
	case (verb == Patch || verb == Delete) && p.collection:
		return errmap.Newf(errmap.CodeInvalidPattern, "%s pattern %q must denote an item", verb, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.verb != verb || e.pattern.raw != raw {
			continue
		}
		if verb != Patch {
			return errmap.Newf(errmap.CodeInvalidPattern, "duplicate %s handler for %q", verb, raw)
		}
		e.handlers = append(e.handlers, handler)
		return nil
	}
	t.entries = append(t.entries, &entry{pattern: p, verb: verb, handlers: []Handler{handler}})
	return nil
}

func (t *Table) OnCreate(pattern string, fn CreateFunc) error {
	return t.Register(pattern, Create, fn)
}

func (t *Table) OnGet(pattern string, fn GetFunc) error {
	return t.Register(pattern, Get, fn)
}

func (t *Table) OnPatch(pattern string, fn PatchFunc) error {
	return t.Register(pattern, Patch, fn)
}

func (t *Table) OnDelete(pattern string, fn DeleteFunc) error {
	return t.Register(pattern, Delete, fn)
}

// Resolve finds the handlers registered for verb whose pattern matches uri.
//
// It fails with InvalidURIError when uri is malformed, has the wrong shape
// for verb, or lies outside every registered collection, and with
// RouteNotFoundError when the collection is known but nothing handles verb.
func (t *Table) Resolve(uri string, verb Verb) (*Match, error) {
	parts, collection, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	switch {
	case verb == Create && !collection:
		return nil, errmap.InvalidURI(uri, "not a collection")
	case (verb == Patch || verb == Delete) && collection:
		return nil, errmap.InvalidURI(uri, "not an item")
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		best   *entry
		params Params
	)
	for _, e := range t.entries {
		if e.verb != verb {
			continue
		}
		p, ok := e.pattern.match(parts, collection)
		if !ok {
			continue
		}
		if best == nil || e.pattern.moreSpecific(best.pattern) {
			best, params = e, p
		}
	}
	if best != nil {
		return &Match{
			Pattern:  best.pattern.raw,
			Params:   params,
			Handlers: slices.Clone(best.handlers),
		}, nil
	}

	if !t.knowsLocked(parts, collection) {
		return nil, errmap.InvalidURI(uri, "unknown collection")
	}
	return nil, errmap.RouteNotFound(uri, verb.String())
}

func (t *Table) knowsLocked(parts []string, collection bool) bool {
	prefix := parts
	if !collection {
		prefix = parts[:len(parts)-1]
	}
	for _, e := range t.entries {
		if e.pattern.matchCollection(prefix) {
			return true
		}
	}
	return false
}

// Patterns lists every registered pattern and verb, in registration order.
func (t *Table) Patterns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.verb.String()+" "+e.pattern.raw)
	}
	return out
}
