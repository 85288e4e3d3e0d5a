// Package wire defines the frames exchanged with clients.
//
// Every frame is a JSON object {"event": <name>, "data": <payload>}.
package wire

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/the-dev-tools/socketapi/pkg/errmap"
)

// Op is an inbound operation.
type Op string

const (
	OpCreate      Op = "create"
	OpGet         Op = "get"
	OpPatch       Op = "patch"
	OpDelete      Op = "delete"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

func (o Op) valid() bool {
	switch o {
	case OpCreate, OpGet, OpPatch, OpDelete, OpSubscribe, OpUnsubscribe:
		return true
	}
	return false
}

// Request is a decoded inbound frame. URI is empty when the client omitted
// it; validating its presence is up to the dispatcher.
type Request struct {
	Op         Op
	URI        string
	Attributes map[string]any
	Patch      map[string]any
}

// Decode parses an inbound frame. Unknown events, non-object payloads and
// mistyped fields fail with InvalidRequestError. subscribe, unsubscribe and
// get also accept the bare URI string as data.
func Decode(frame []byte) (Request, error) {
	if !gjson.ValidBytes(frame) {
		return Request{}, errmap.InvalidRequest("frame is not valid JSON")
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return Request{}, errmap.InvalidRequest("frame must be a JSON object")
	}

	event := root.Get("event")
	if event.Type != gjson.String {
		return Request{}, errmap.InvalidRequest("missing event name")
	}
	req := Request{Op: Op(event.Str)}
	if !req.Op.valid() {
		return Request{}, errmap.InvalidRequest("unknown event %q", event.Str)
	}

	data := root.Get("data")
	switch {
	case !data.Exists() || data.Type == gjson.Null:
		return req, nil
	case data.Type == gjson.String:
		if req.Op != OpSubscribe && req.Op != OpUnsubscribe && req.Op != OpGet {
			return Request{}, errmap.InvalidRequest("%s expects an object payload", req.Op)
		}
		req.URI = data.Str
		return req, nil
	case !data.IsObject():
		return Request{}, errmap.InvalidRequest("%s expects an object payload", req.Op)
	}

	if uri := data.Get("uri"); uri.Exists() && uri.Type != gjson.Null {
		if uri.Type != gjson.String {
			return Request{}, errmap.InvalidRequest("uri must be a string")
		}
		req.URI = uri.Str
	}

	var err error
	switch req.Op {
	case OpCreate:
		req.Attributes, err = mapping(data.Get("attributes"), "attributes")
	case OpPatch:
		req.Patch, err = mapping(data.Get("patch"), "patch")
	}
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// mapping decodes an optional JSON object field into map[string]any.
func mapping(field gjson.Result, name string) (map[string]any, error) {
	if !field.Exists() || field.Type == gjson.Null {
		return map[string]any{}, nil
	}
	if !field.IsObject() {
		return nil, errmap.InvalidRequest("%s must be an object", name)
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(field.Raw), &m); err != nil {
		return nil, errmap.New(errmap.CodeInvalidRequest, fmt.Sprintf("%s: %v", name, err), err)
	}
	return m, nil
}
