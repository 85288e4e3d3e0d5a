//nolint:revive // exported
package rhealth

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/the-dev-tools/socketapi/internal/api"
)

const Path = "/healthz"

type ConnectionCounter interface {
	ConnectionCount() int
}

type SubscriptionCounter interface {
	Len() int
}

type Status struct {
	Status        string `json:"status"`
	Connections   int    `json:"connections"`
	Subscriptions int    `json:"subscriptions"`
}

type HealthService struct {
	conns ConnectionCounter
	subs  SubscriptionCounter
}

func New(conns ConnectionCounter, subs SubscriptionCounter) *HealthService {
	return &HealthService{conns: conns, subs: subs}
}

func CreateService(srv *HealthService) *api.Service {
	return &api.Service{Path: Path, Handler: srv}
}

func (s *HealthService) Check() Status {
	return Status{
		Status:        "ok",
		Connections:   s.conns.ConnectionCount(),
		Subscriptions: s.subs.Len(),
	}
}

func (s *HealthService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	body, err := json.Marshal(s.Check())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
