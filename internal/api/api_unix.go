//go:build !windows

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
)

// DefaultServerSocketPath returns the default path for the server Unix socket.
func DefaultServerSocketPath() string {
	return filepath.Join(os.TempDir(), "socketapi", "server.socket")
}

func listenIPC(ctx context.Context, socketPath string) (net.Listener, func(), error) {
	if socketPath == "" {
		socketPath = DefaultServerSocketPath()
	}

	// Create socket directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o750); err != nil {
		return nil, nil, err
	}

	// Remove stale socket file if present (e.g., from a previous crash)
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove stale socket", "path", socketPath, "error", err)
	}

	lc := net.ListenConfig{}
	socket, err := lc.Listen(ctx, "unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("listen unix %s: %w", socketPath, err)
	}
	slog.Info("Server listening on Unix socket", "path", socketPath)

	cleanup := func() {
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove socket on shutdown", "path", socketPath, "error", err)
		}
	}
	return socket, cleanup, nil
}
