package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/the-dev-tools/socketapi/pkg/route"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

// StoreItemGetter serves item state straight from st.
func StoreItemGetter(st store.Store) route.GetFunc {
	return func(ctx context.Context, req *route.Request) (any, error) {
		return st.Get(ctx, store.KeyOf(req.URI))
	}
}

// StoreCollectionGetter serves collection state straight from st.
func StoreCollectionGetter(st store.Store) route.GetFunc {
	return func(ctx context.Context, req *route.Request) (any, error) {
		return st.List(ctx, req.URI)
	}
}

// asList normalises the value returned by a collection getter.
func asList(v any) ([]any, error) {
	switch l := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("collection getter returned %T, want a slice", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
