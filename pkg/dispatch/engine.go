// Package dispatch runs inbound operations against the route table, the
// store and the subscription registry, and reports the outcome to clients.
//
// Every operation walks RECEIVED → RESOLVED → EXECUTED → PERSISTED →
// BROADCAST → DONE, or drops to FAILED → DONE at the first error. A failure
// is reported to the requesting connection only.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/the-dev-tools/socketapi/pkg/errmap"
	"github.com/the-dev-tools/socketapi/pkg/fanout"
	"github.com/the-dev-tools/socketapi/pkg/route"
	"github.com/the-dev-tools/socketapi/pkg/store"
	"github.com/the-dev-tools/socketapi/pkg/subscription"
	"github.com/the-dev-tools/socketapi/pkg/wire"
)

type State string

const (
	StateReceived  State = "received"
	StateResolved  State = "resolved"
	StateExecuted  State = "executed"
	StatePersisted State = "persisted"
	StateBroadcast State = "broadcast"
	StateFailed    State = "failed"
	StateDone      State = "done"
)

type Engine struct {
	routes         *route.Table
	registry       *subscription.Registry
	store          store.Store
	out            *fanout.Fanout
	logger         *slog.Logger
	locks          *keyLock
	debug          bool
	handlerDeletes bool
	idAttribute    string
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDebug exposes server error messages to clients.
func WithDebug(debug bool) Option {
	return func(e *Engine) { e.debug = debug }
}

// WithHandlerDeletes leaves removal of deleted resources to the DELETE
// handler instead of calling Store.Delete after it returns.
func WithHandlerDeletes() Option {
	return func(e *Engine) { e.handlerDeletes = true }
}

// WithIDAttribute names the attribute holding a resource identifier for
// resources that do not implement store.Identifiable. Defaults to "id".
func WithIDAttribute(name string) Option {
	return func(e *Engine) { e.idAttribute = name }
}

func New(routes *route.Table, registry *subscription.Registry, st store.Store, out *fanout.Fanout, opts ...Option) *Engine {
	e := &Engine{
		routes:      routes,
		registry:    registry,
		store:       st,
		out:         out,
		logger:      slog.Default(),
		locks:       newKeyLock(),
		idAttribute: "id",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// operation tracks one request through the state machine.
type operation struct {
	e      *Engine
	connID string
	op     wire.Op
	uri    string
	state  State
}

func (o *operation) to(s State) {
	o.e.logger.Debug("dispatch transition", "conn", o.connID, "op", string(o.op), "uri", o.uri, "from", string(o.state), "state", string(s))
	o.state = s
}

func (o *operation) request(m *route.Match) *route.Request {
	return &route.Request{ConnID: o.connID, URI: o.uri, Params: m.Params}
}

// Handle decodes an inbound frame and dispatches it. Decoding failures are
// reported as InvalidRequestError.
func (e *Engine) Handle(ctx context.Context, connID string, frame []byte) error {
	req, err := wire.Decode(frame)
	if err != nil {
		o := &operation{e: e, connID: connID, state: StateReceived}
		return e.fail(context.WithoutCancel(ctx), o, err)
	}
	return e.Dispatch(ctx, connID, req)
}

// Dispatch runs req to completion on behalf of connID. The returned error is
// the classified failure already reported to the client, or nil.
func (e *Engine) Dispatch(ctx context.Context, connID string, req wire.Request) (err error) {
	// Once received an operation runs to the end even if the client goes away.
	ctx = context.WithoutCancel(ctx)
	o := &operation{e: e, connID: connID, op: req.Op, uri: req.URI, state: StateReceived}
	o.e.logger.Debug("dispatch transition", "conn", connID, "op", string(req.Op), "uri", req.URI, "state", string(StateReceived))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic", "conn", connID, "op", string(req.Op), "uri", req.URI, "panic", r, "stack", string(debug.Stack()))
			err = e.fail(ctx, o, errmap.New(errmap.CodePanic, fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	var opErr error
	switch req.Op {
	case wire.OpCreate:
		opErr = e.create(ctx, o, req)
	case wire.OpPatch:
		opErr = e.patch(ctx, o, req)
	case wire.OpDelete:
		opErr = e.delete(ctx, o, req)
	case wire.OpSubscribe:
		opErr = e.subscribe(ctx, o, req)
	case wire.OpGet:
		opErr = e.get(ctx, o, req)
	case wire.OpUnsubscribe:
		e.unsubscribe(o, req)
	default:
		opErr = errmap.InvalidRequest("unknown event %q", req.Op)
	}
	if opErr != nil {
		return e.fail(ctx, o, opErr)
	}
	o.to(StateDone)
	return nil
}

// Disconnect drops every subscription held by connID. Transports call it once
// a connection has terminated.
func (e *Engine) Disconnect(connID string) {
	uris := e.registry.DropConnection(connID)
	e.logger.Debug("connection dropped", "conn", connID, "subscriptions", len(uris))
}

func (e *Engine) fail(ctx context.Context, o *operation, err error) error {
	o.to(StateFailed)
	me := errmap.Map(err)

	var evt wire.Event
	if me.API() {
		e.logger.Info("api error", "conn", o.connID, "op", string(o.op), "uri", o.uri, "kind", string(me.Code), "error", me.Error())
		evt = wire.APIError(string(me.Code), me.Error())
	} else {
		e.logger.Error("server error", "conn", o.connID, "op", string(o.op), "uri", o.uri, "kind", string(me.Code), "error", err)
		var msg *string
		if e.debug {
			s := err.Error()
			msg = &s
		}
		evt = wire.ServerError(string(me.Code), msg)
	}

	if sendErr := e.out.Send(ctx, o.connID, evt); sendErr != nil {
		e.logger.Warn("error reply not delivered", "conn", o.connID, "error", sendErr)
	}
	o.to(StateDone)
	return me
}

func (e *Engine) create(ctx context.Context, o *operation, req wire.Request) error {
	if req.URI == "" {
		return errmap.MissingURI()
	}
	m, err := e.routes.Resolve(req.URI, route.Create)
	if err != nil {
		return err
	}
	o.to(StateResolved)

	resource, err := m.Handlers[0].(route.CreateFunc)(ctx, o.request(m), req.Attributes)
	if err != nil {
		return err
	}
	if resource == nil {
		return errors.New("create handler returned no resource")
	}
	id, err := store.IDOf(resource, e.idAttribute)
	if err != nil {
		return err
	}
	o.to(StateExecuted)

	key := store.Key{Collection: req.URI, ID: id}
	unlock := e.locks.Lock(key.URI())
	defer unlock()

	switch _, err := e.store.Get(ctx, key); {
	case err == nil:
		return errmap.InvalidRequest("resource %q already exists", key.URI())
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	unlockCollection := e.locks.Lock(req.URI)
	defer unlockCollection()

	if err := e.store.Save(ctx, key, resource); err != nil {
		return err
	}
	o.to(StatePersisted)

	// An item that did not exist has no item-level subscribers yet.
	if _, err := e.out.Publish(ctx, wire.CreateEvent(req.URI, resource), req.URI); err != nil {
		return err
	}
	o.to(StateBroadcast)
	return nil
}

// load fetches the resource behind an item URI, mapping absence to
// ResourceNotFoundError.
func (e *Engine) load(ctx context.Context, uri string) (any, error) {
	resource, err := e.store.Get(ctx, store.KeyOf(uri))
	if errors.Is(err, store.ErrNotFound) || (err == nil && resource == nil) {
		return nil, errmap.ResourceNotFound(uri)
	}
	return resource, err
}

func (e *Engine) patch(ctx context.Context, o *operation, req wire.Request) error {
	if req.URI == "" {
		return errmap.MissingURI()
	}
	m, err := e.routes.Resolve(req.URI, route.Patch)
	if err != nil {
		return err
	}
	o.to(StateResolved)

	unlock := e.locks.Lock(req.URI)
	defer unlock()

	resource, err := e.load(ctx, req.URI)
	if err != nil {
		return err
	}
	r := o.request(m)
	for _, h := range m.Handlers {
		if err := h.(route.PatchFunc)(ctx, r, resource, req.Patch); err != nil {
			return err
		}
	}
	o.to(StateExecuted)

	collection := route.CollectionOf(req.URI)
	unlockCollection := e.locks.Lock(collection)
	defer unlockCollection()

	if err := e.store.Save(ctx, store.KeyOf(req.URI), resource); err != nil {
		return err
	}
	o.to(StatePersisted)

	changed := make(map[string]any, len(req.Patch))
	for k, v := range req.Patch {
		if cur, ok := store.AttributeOf(resource, k); ok {
			v = cur
		}
		changed[k] = v
	}
	if _, err := e.out.Publish(ctx, wire.PatchEvent(req.URI, changed), req.URI, collection); err != nil {
		return err
	}
	o.to(StateBroadcast)
	return nil
}

func (e *Engine) delete(ctx context.Context, o *operation, req wire.Request) error {
	if req.URI == "" {
		return errmap.MissingURI()
	}
	m, err := e.routes.Resolve(req.URI, route.Delete)
	if err != nil {
		return err
	}
	o.to(StateResolved)

	unlock := e.locks.Lock(req.URI)
	defer unlock()

	resource, err := e.load(ctx, req.URI)
	if err != nil {
		return err
	}
	if err := m.Handlers[0].(route.DeleteFunc)(ctx, o.request(m), resource); err != nil {
		return err
	}
	o.to(StateExecuted)

	collection := route.CollectionOf(req.URI)
	unlockCollection := e.locks.Lock(collection)
	defer unlockCollection()

	if !e.handlerDeletes {
		if err := e.store.Delete(ctx, store.KeyOf(req.URI)); err != nil {
			return err
		}
	}
	o.to(StatePersisted)

	if _, err := e.out.Publish(ctx, wire.DeleteEvent(req.URI), req.URI, collection); err != nil {
		return err
	}
	o.to(StateBroadcast)
	return nil
}

func (e *Engine) subscribe(ctx context.Context, o *operation, req wire.Request) error {
	if req.URI == "" {
		return errmap.MissingURI()
	}
	// Malformed URIs and unknown collections fail before anything is
	// registered. A known collection without a GET route is subscribable
	// but has no state to push.
	m, err := e.routes.Resolve(req.URI, route.Get)
	var me *errmap.Error
	noState := errors.As(err, &me) && me.Code == errmap.CodeRouteNotFound
	if err != nil && !noState {
		return err
	}

	// Register before reading state so no event between the read and the
	// registration is lost.
	if e.registry.Subscribe(o.connID, req.URI) {
		e.out.Join(o.connID, req.URI)
	}
	if noState {
		o.to(StateExecuted)
		return nil
	}
	o.to(StateResolved)
	// A failed state read is reported, the subscription stays.
	return e.replyState(ctx, o, m)
}

func (e *Engine) get(ctx context.Context, o *operation, req wire.Request) error {
	if req.URI == "" {
		return errmap.MissingURI()
	}
	m, err := e.routes.Resolve(req.URI, route.Get)
	if err != nil {
		return err
	}
	o.to(StateResolved)
	return e.replyState(ctx, o, m)
}

func (e *Engine) replyState(ctx context.Context, o *operation, m *route.Match) error {
	getter := m.Handlers[0].(route.GetFunc)

	var evt wire.Event
	if route.IsCollection(o.uri) {
		// Held through the send so the snapshot is not overtaken by the
		// events of concurrent mutations.
		unlock := e.locks.Lock(o.uri)
		defer unlock()
		v, err := getter(ctx, o.request(m))
		if err != nil {
			return err
		}
		list, err := asList(v)
		if err != nil {
			return err
		}
		evt = wire.CollectionState(o.uri, list)
	} else {
		unlock := e.locks.Lock(o.uri)
		defer unlock()
		v, err := getter(ctx, o.request(m))
		if errors.Is(err, store.ErrNotFound) {
			v, err = nil, nil
		}
		if err != nil {
			return err
		}
		evt = wire.ItemState(o.uri, v)
	}
	o.to(StateExecuted)

	if err := e.out.Send(ctx, o.connID, evt); err != nil {
		// The requester is the only recipient; nothing else to roll back.
		e.logger.Warn("state reply not delivered", "conn", o.connID, "uri", o.uri, "error", err)
	}
	return nil
}

func (e *Engine) unsubscribe(o *operation, req wire.Request) {
	if req.URI != "" && e.registry.Unsubscribe(o.connID, req.URI) {
		e.out.Leave(o.connID, req.URI)
	}
	o.to(StateExecuted)
}
