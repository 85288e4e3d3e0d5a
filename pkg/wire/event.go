package wire

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/route"
)

type Kind string

const (
	KindCreate      Kind = "create"
	KindPatch       Kind = "patch"
	KindDelete      Kind = "delete"
	KindState       Kind = "state"
	KindAPIError    Kind = "api_error"
	KindServerError Kind = "server_error"
)

// Event is an outbound notification. Which fields are meaningful depends on
// Kind; use the constructors.
type Event struct {
	Kind      Kind
	URI       string
	Resource  any
	Resources []any
	Patch     map[string]any
	Error     string
	Message   *string
}

// CreateEvent announces resource to the subscribers of collection.
func CreateEvent(collection string, resource any) Event {
	return Event{Kind: KindCreate, URI: collection, Resource: resource}
}

func PatchEvent(uri string, patch map[string]any) Event {
	return Event{Kind: KindPatch, URI: uri, Patch: patch}
}

func DeleteEvent(uri string) Event {
	return Event{Kind: KindDelete, URI: uri}
}

// ItemState carries the current value of an item; resource may be nil.
func ItemState(uri string, resource any) Event {
	return Event{Kind: KindState, URI: uri, Resource: resource}
}

func CollectionState(uri string, resources []any) Event {
	if resources == nil {
		resources = []any{}
	}
	return Event{Kind: KindState, URI: uri, Resources: resources}
}

func APIError(kind, message string) Event {
	return Event{Kind: KindAPIError, Error: kind, Message: &message}
}

// ServerError reports a failure kind. message is nil unless the server runs
// in debug mode.
func ServerError(kind string, message *string) Event {
	return Event{Kind: KindServerError, Error: kind, Message: message}
}

type frame struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type (
	resourceData struct {
		URI      string          `json:"uri"`
		Resource json.RawMessage `json:"resource"`
	}
	resourcesData struct {
		URI       string          `json:"uri"`
		Resources json.RawMessage `json:"resources"`
	}
	patchData struct {
		URI   string         `json:"uri"`
		Patch map[string]any `json:"patch"`
	}
	uriData struct {
		URI string `json:"uri"`
	}
	errorData struct {
		Error   string  `json:"error"`
		Message *string `json:"message"`
	}
)

// Encoder renders events, serializing resources with the codec registered
// for their collection.
type Encoder struct {
	codecs *encoder.Registry
}

func NewEncoder(codecs *encoder.Registry) *Encoder {
	return &Encoder{codecs: codecs}
}

// Marshal renders evt as a complete frame.
func (e *Encoder) Marshal(evt Event) ([]byte, error) {
	var data any
	switch evt.Kind {
	case KindCreate:
		res, err := e.resource(evt.URI, evt.Resource)
		if err != nil {
			return nil, err
		}
		data = resourceData{URI: evt.URI, Resource: res}
	case KindState:
		if route.IsCollection(evt.URI) {
			list, err := e.resources(evt.URI, evt.Resources)
			if err != nil {
				return nil, err
			}
			data = resourcesData{URI: evt.URI, Resources: list}
			break
		}
		res, err := e.resource(evt.URI, evt.Resource)
		if err != nil {
			return nil, err
		}
		data = resourceData{URI: evt.URI, Resource: res}
	case KindPatch:
		patch := evt.Patch
		if patch == nil {
			patch = map[string]any{}
		}
		data = patchData{URI: evt.URI, Patch: patch}
	case KindDelete:
		data = uriData{URI: evt.URI}
	case KindAPIError, KindServerError:
		data = errorData{Error: evt.Error, Message: evt.Message}
	default:
		return nil, fmt.Errorf("unknown event kind %q", evt.Kind)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", evt.Kind, err)
	}
	return json.Marshal(frame{Event: evt.Kind, Data: raw})
}

func (e *Encoder) resource(uri string, resource any) (json.RawMessage, error) {
	if resource == nil {
		return json.RawMessage("null"), nil
	}
	return e.codecs.Encode(route.CollectionOf(uri), resource)
}

func (e *Encoder) resources(collection string, resources []any) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range resources {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := e.resource(collection, r)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
