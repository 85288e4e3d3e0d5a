// Package subscription tracks which connections are subscribed to which URIs.
//
// Collection and item URIs are unrelated keys here: notifying both scopes of
// a mutation is the caller's job. Connections are referenced by id only.
package subscription

import (
	"slices"
	"sync"
)

type set map[string]struct{}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byURI  map[string]set
	byConn map[string]set
	pairs  int
}

func New() *Registry {
	return &Registry{
		byURI:  make(map[string]set),
		byConn: make(map[string]set),
	}
}

// Subscribe records (connID, uri). Subscribing twice is a no-op; the result
// reports whether the pair was new.
func (r *Registry) Subscribe(connID, uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	uris, ok := r.byConn[connID]
	if !ok {
		uris = make(set)
		r.byConn[connID] = uris
	}
	if _, exists := uris[uri]; exists {
		return false
	}
	uris[uri] = struct{}{}

	conns, ok := r.byURI[uri]
	if !ok {
		conns = make(set)
		r.byURI[uri] = conns
	}
	conns[connID] = struct{}{}
	r.pairs++
	return true
}

// Unsubscribe removes (connID, uri). Removing an absent pair is a no-op; the
// result reports whether anything was removed.
func (r *Registry) Unsubscribe(connID, uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID, uri)
}

func (r *Registry) removeLocked(connID, uri string) bool {
	uris, ok := r.byConn[connID]
	if !ok {
		return false
	}
	if _, exists := uris[uri]; !exists {
		return false
	}
	delete(uris, uri)
	if len(uris) == 0 {
		delete(r.byConn, connID)
	}
	if conns, ok := r.byURI[uri]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byURI, uri)
		}
	}
	r.pairs--
	return true
}

// SubscribersOf returns a sorted snapshot of the connections subscribed to
// exactly uri. The snapshot may be stale by the time it is used.
func (r *Registry) SubscribersOf(uri string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byURI[uri])
}

// Subscriptions returns a sorted snapshot of the URIs connID is subscribed to.
func (r *Registry) Subscriptions(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byConn[connID])
}

// DropConnection removes every subscription held by connID and returns the
// URIs it was subscribed to. It is called by the transport when a
// connection terminates.
func (r *Registry) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	uris := sortedKeys(r.byConn[connID])
	for _, uri := range uris {
		r.removeLocked(connID, uri)
	}
	return uris
}

// Len returns the number of (connection, URI) pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs
}

func sortedKeys(s set) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
