package route

import (
	"strings"

	"github.com/the-dev-tools/socketapi/pkg/errmap"
)

// IsCollection reports whether uri denotes a collection (trailing slash).
func IsCollection(uri string) bool {
	return strings.HasSuffix(uri, "/")
}

// CollectionOf returns the collection an item URI belongs to, formed by
// truncating to the last slash inclusive. A collection URI is returned as is.
func CollectionOf(uri string) string {
	i := strings.LastIndex(uri, "/")
	if i < 0 {
		return ""
	}
	return uri[:i+1]
}

// ItemID returns the last segment of an item URI.
func ItemID(uri string) string {
	return uri[strings.LastIndex(uri, "/")+1:]
}

// ValidateURI checks the syntax shared by every URI: a leading slash and no
// empty segments other than the trailing one of a collection.
func ValidateURI(uri string) error {
	_, _, err := splitURI(uri)
	return err
}

// splitURI returns the segments of uri and whether it denotes a collection.
// The root collection "/" has no segments.
func splitURI(uri string) ([]string, bool, error) {
	if uri == "" {
		return nil, false, errmap.InvalidURI(uri, "empty")
	}
	if !strings.HasPrefix(uri, "/") {
		return nil, false, errmap.InvalidURI(uri, "must start with '/'")
	}
	if strings.Contains(uri, "//") {
		return nil, false, errmap.InvalidURI(uri, "empty segment")
	}
	collection := IsCollection(uri)
	trimmed := strings.TrimSuffix(strings.TrimPrefix(uri, "/"), "/")
	if trimmed == "" {
		if collection {
			return nil, true, nil
		}
		return nil, false, errmap.InvalidURI(uri, "missing resource identifier")
	}
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		if s == "" {
			return nil, false, errmap.InvalidURI(uri, "empty segment")
		}
	}
	return segments, collection, nil
}
