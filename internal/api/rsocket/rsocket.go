// Package rsocket serves the realtime endpoint over websockets. Each
// connection gets a uuid, a buffered outbound queue drained by its own
// writer goroutine, and a read loop feeding frames to the dispatcher.
package rsocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/the-dev-tools/socketapi/internal/api"
)

const (
	DefaultPath       = "/socket"
	DefaultSendBuffer = 256
	writeTimeout      = 10 * time.Second
)

var (
	ErrConnectionNotFound = errors.New("rsocket: connection not found")
	ErrSlowConsumer       = errors.New("rsocket: send buffer full")
)

// Dispatcher consumes inbound frames. Handle is called sequentially for the
// frames of one connection.
type Dispatcher interface {
	Handle(ctx context.Context, connID string, frame []byte) error
	Disconnect(connID string)
}

type conn struct {
	id     string
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool
	rooms  map[string]struct{}
}

// enqueue never blocks: a full buffer is reported as ErrSlowConsumer.
func (c *conn) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionNotFound
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*conn
	dispatcher Dispatcher
	logger     *slog.Logger
	sendBuffer int
	accept     *websocket.AcceptOptions
	wg         sync.WaitGroup
}

type Option func(*Hub)

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(h *Hub) { h.accept = opts }
}

func New(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		conns:      make(map[string]*conn),
		logger:     logger,
		sendBuffer: DefaultSendBuffer,
		// CORS is handled by the outer server.
		accept: &websocket.AcceptOptions{InsecureSkipVerify: true},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind sets the dispatcher. It must be called before the hub serves requests.
func (h *Hub) Bind(d Dispatcher) {
	h.dispatcher = d
}

func CreateService(h *Hub, path string) *api.Service {
	if path == "" {
		path = DefaultPath
	}
	return &api.Service{Path: path, Handler: h}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		cancel: cancel,
		send:   make(chan []byte, h.sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.logger.Info("connection opened", "conn", c.id, "remote", r.RemoteAddr)

	h.wg.Add(1)
	go h.writeLoop(ctx, c)

	status := h.readLoop(ctx, c)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	c.shutdown()
	cancel()
	if h.dispatcher != nil {
		h.dispatcher.Disconnect(c.id)
	}
	if err := ws.Close(status, ""); err != nil {
		_ = ws.CloseNow()
	}
	h.logger.Info("connection closed", "conn", c.id, "status", status.String())
}

func (h *Hub) readLoop(ctx context.Context, c *conn) websocket.StatusCode {
	for {
		_, frame, err := c.ws.Read(ctx)
		if err != nil {
			if s := websocket.CloseStatus(err); s != -1 {
				return s
			}
			if ctx.Err() != nil {
				return websocket.StatusGoingAway
			}
			h.logger.Debug("websocket read failed", "conn", c.id, "error", err)
			return websocket.StatusInternalError
		}
		if h.dispatcher == nil {
			h.logger.Error("frame dropped, no dispatcher bound", "conn", c.id)
			continue
		}
		// Failures are reported to the client by the dispatcher itself.
		_ = h.dispatcher.Handle(ctx, c.id, frame)
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *conn) {
	defer h.wg.Done()
	for frame := range c.send {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			h.logger.Debug("websocket write failed", "conn", c.id, "error", err)
			c.cancel()
			// drain so enqueue keeps failing fast until shutdown
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) lookup(connID string) (*conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	return c, ok
}

// Deliver queues frame for connID, preserving call order per connection.
func (h *Hub) Deliver(_ context.Context, connID string, frame []byte) error {
	c, ok := h.lookup(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	return c.enqueue(frame)
}

func (h *Hub) Join(connID, uri string) error {
	c, ok := h.lookup(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	c.mu.Lock()
	c.rooms[uri] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (h *Hub) Leave(connID, uri string) error {
	c, ok := h.lookup(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	c.mu.Lock()
	delete(c.rooms, uri)
	c.mu.Unlock()
	return nil
}

// Rooms lists the rooms connID has joined.
func (h *Hub) Rooms(connID string) []string {
	c, ok := h.lookup(connID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Connections returns the ids of open connections.
func (h *Hub) Connections() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close terminates every open connection and waits for their writers.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.cancel()
	}
	h.wg.Wait()
}
