// Package todo is the demo application served by the socketapi binary: a
// shared todo list that every connected client sees change in real time.
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/errmap"
	"github.com/the-dev-tools/socketapi/pkg/idwrap"
	"github.com/the-dev-tools/socketapi/pkg/route"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

const (
	Collection  = "/todo/"
	ItemPattern = "/todo/<ulid:id>"
)

type Todo struct {
	ID        idwrap.IDWrap `json:"id"`
	Text      string        `json:"text"`
	Completed bool          `json:"completed"`
}

func (t *Todo) ResourceID() string { return t.ID.String() }

func (t *Todo) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID.String(), true
	case "text":
		return t.Text, true
	case "completed":
		return t.Completed, true
	}
	return nil, false
}

// set applies one client supplied attribute.
func (t *Todo) set(name string, value any) error {
	switch name {
	case "text":
		s, ok := value.(string)
		if !ok {
			return errmap.InvalidRequest("text must be a string, got %T", value)
		}
		t.Text = strings.TrimSpace(s)
	case "completed":
		b, ok := value.(bool)
		if !ok {
			return errmap.InvalidRequest("completed must be a boolean, got %T", value)
		}
		t.Completed = b
	case "id":
		return errmap.InvalidRequest("id is read-only")
	default:
		return errmap.InvalidRequest("unknown todo attribute %q", name)
	}
	return nil
}

type Service struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Register installs the todo codec and routes.
func (s *Service) Register(routes *route.Table, codecs *encoder.Registry) error {
	codecs.Register(Collection, encoder.JSON[Todo]{})

	for _, err := range []error{
		routes.OnCreate(Collection, s.Create),
		routes.OnGet(Collection, s.List),
		routes.OnGet(ItemPattern, s.Get),
		routes.OnPatch(ItemPattern, s.Patch),
		routes.OnDelete(ItemPattern, s.Delete),
	} {
		if err != nil {
			return fmt.Errorf("register todo routes: %w", err)
		}
	}
	return nil
}

func (s *Service) Create(_ context.Context, req *route.Request, attributes map[string]any) (any, error) {
	t := &Todo{ID: idwrap.NewNow()}
	// sorted so the first reported error is stable
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := t.set(k, attributes[k]); err != nil {
			return nil, err
		}
	}
	s.logger.Debug("todo created", "conn", req.ConnID, "id", t.ID.String())
	return t, nil
}

func (s *Service) List(ctx context.Context, req *route.Request) (any, error) {
	return s.store.List(ctx, req.URI)
}

func (s *Service) Get(ctx context.Context, req *route.Request) (any, error) {
	return s.store.Get(ctx, store.KeyOf(req.URI))
}

func (s *Service) Patch(_ context.Context, _ *route.Request, resource any, patch map[string]any) error {
	t, ok := resource.(*Todo)
	if !ok {
		return fmt.Errorf("todo patch: unexpected resource %T", resource)
	}
	for k, v := range patch {
		if err := t.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Delete(_ context.Context, req *route.Request, resource any) error {
	s.logger.Debug("todo deleted", "conn", req.ConnID, "uri", req.URI)
	return nil
}
