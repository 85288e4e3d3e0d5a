// Package fanout pushes events to the connections subscribed to a URI.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/the-dev-tools/socketapi/pkg/subscription"
	"github.com/the-dev-tools/socketapi/pkg/wire"
)

// Transport delivers one encoded frame to one connection. Implementations
// must preserve call order per connection.
type Transport interface {
	Deliver(ctx context.Context, connID string, frame []byte) error
}

// Grouper is implemented by transports that keep their own broadcast groups
// mirroring the subscription registry.
type Grouper interface {
	Join(connID, uri string) error
	Leave(connID, uri string) error
}

type Fanout struct {
	registry  *subscription.Registry
	transport Transport
	enc       *wire.Encoder
	logger    *slog.Logger
}

func New(registry *subscription.Registry, transport Transport, enc *wire.Encoder, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{registry: registry, transport: transport, enc: enc, logger: logger}
}

// Send delivers evt to a single connection.
func (f *Fanout) Send(ctx context.Context, connID string, evt wire.Event) error {
	frame, err := f.enc.Marshal(evt)
	if err != nil {
		return err
	}
	if err := f.transport.Deliver(ctx, connID, frame); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", evt.Kind, connID, err)
	}
	return nil
}

// Publish delivers evt once to every connection subscribed to any of uris.
// A connection subscribed to several of them still receives a single copy.
// Delivery failures are logged and skipped; the returned count is the number
// of successful deliveries.
func (f *Fanout) Publish(ctx context.Context, evt wire.Event, uris ...string) (int, error) {
	var targets []string
	seen := make(map[string]struct{})
	for _, uri := range uris {
		for _, conn := range f.registry.SubscribersOf(uri) {
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			targets = append(targets, conn)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	frame, err := f.enc.Marshal(evt)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, conn := range targets {
		if err := f.transport.Deliver(ctx, conn, frame); err != nil {
			f.logger.Warn("fanout delivery failed", "conn", conn, "event", string(evt.Kind), "uri", evt.URI, "error", err)
			continue
		}
		delivered++
	}
	f.logger.Debug("fanout", "event", string(evt.Kind), "uri", evt.URI, "subscribers", len(targets), "delivered", delivered)
	return delivered, nil
}

// Join mirrors a new subscription onto the transport when it groups
// connections itself.
func (f *Fanout) Join(connID, uri string) {
	g, ok := f.transport.(Grouper)
	if !ok {
		return
	}
	if err := g.Join(connID, uri); err != nil {
		f.logger.Warn("transport join failed", "conn", connID, "uri", uri, "error", err)
	}
}

func (f *Fanout) Leave(connID, uri string) {
	g, ok := f.transport.(Grouper)
	if !ok {
		return
	}
	if err := g.Leave(connID, uri); err != nil {
		f.logger.Warn("transport leave failed", "conn", connID, "uri", uri, "error", err)
	}
}
