// Package store defines the persistence port used by the dispatch engine.
//
// Implementations live in the subpackages (memory, sqlstore, redisstore) and
// must be safe for concurrent use on distinct keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/the-dev-tools/socketapi/pkg/route"
)

// ErrNotFound is returned by Get when no resource is stored under the key.
var ErrNotFound = errors.New("resource not found")

// Key identifies a stored resource: the collection URI it lives in and its
// identifier within that collection.
type Key struct {
	Collection string
	ID         string
}

// KeyOf splits an item URI into its key.
func KeyOf(uri string) Key {
	return Key{Collection: route.CollectionOf(uri), ID: route.ItemID(uri)}
}

// URI returns the item URI of the key.
func (k Key) URI() string {
	return k.Collection + k.ID
}

func (k Key) String() string {
	return k.URI()
}

type Store interface {
	// Get returns the resource stored under key, or ErrNotFound.
	Get(ctx context.Context, key Key) (any, error)
	// List returns every resource of collection in insertion order.
	List(ctx context.Context, collection string) ([]any, error)
	// Save inserts or replaces the resource stored under key.
	Save(ctx context.Context, key Key, resource any) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error
}

// Identifiable resources report their own identifier.
type Identifiable interface {
	ResourceID() string
}

// Attributer resources expose named attributes for patch payloads.
type Attributer interface {
	Attribute(name string) (any, bool)
}

// IDOf extracts the identifier of resource. It honours Identifiable, then
// looks up attr in a map[string]any, then a struct field whose json tag or
// name matches attr.
func IDOf(resource any, attr string) (string, error) {
	if resource == nil {
		return "", errors.New("nil resource has no identifier")
	}
	if r, ok := resource.(Identifiable); ok {
		if id := r.ResourceID(); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%T reports an empty identifier", resource)
	}
	v, ok := AttributeOf(resource, attr)
	if !ok || v == nil {
		return "", fmt.Errorf("%T has no %q attribute", resource, attr)
	}
	id := fmt.Sprint(v)
	if id == "" {
		return "", fmt.Errorf("%T has an empty %q attribute", resource, attr)
	}
	return id, nil
}

// AttributeOf reads the named attribute of resource.
func AttributeOf(resource any, name string) (any, bool) {
	switch r := resource.(type) {
	case nil:
		return nil, false
	case Attributer:
		return r.Attribute(name)
	case map[string]any:
		v, ok := r[name]
		return v, ok
	}

	rv := reflect.ValueOf(resource)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}
