//nolint:revive // exported
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type Service struct {
	Handler http.Handler
	Path    string
}

// Server mode constants
const (
	ServerModeUDS = "uds"
	ServerModeTCP = "tcp"
)

type Config struct {
	Mode       string
	Port       string
	SocketPath string
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         int(time.Second),
	})
}

func newH2CServer(mux *http.ServeMux) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		// INFO: Use h2c so plain HTTP/2 health probes work without TLS.
		Handler: h2c.NewHandler(newCORS().Handler(mux), &http2.Server{
			IdleTimeout: 0,
		}),
	}
}

// NewMux registers every service on a fresh mux.
func NewMux(services []Service) *http.ServeMux {
	mux := http.NewServeMux()
	for _, service := range services {
		slog.Info("Registering service", "path", service.Path)
		mux.Handle(service.Path, service.Handler)
	}
	return mux
}

// Listen opens the listener selected by cfg.Mode. Unknown modes fall back to
// tcp.
func Listen(ctx context.Context, cfg Config) (net.Listener, func(), error) {
	switch cfg.Mode {
	case ServerModeUDS:
		return listenIPC(ctx, cfg.SocketPath)
	case ServerModeTCP, "":
	default:
		slog.Warn("Unknown server mode, falling back to tcp", "mode", cfg.Mode)
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("listen tcp :%s: %w", cfg.Port, err)
	}
	slog.Info("Server listening on TCP", "addr", ln.Addr().String())
	return ln, func() {}, nil
}

// Serve serves services on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, services []Service) error {
	srv := newH2CServer(NewMux(services))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenServices starts the server described by cfg and blocks until ctx is
// done.
func ListenServices(ctx context.Context, cfg Config, services []Service) error {
	ln, cleanup, err := Listen(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return Serve(ctx, ln, services)
}
