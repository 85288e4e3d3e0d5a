//go:build windows

package api

import (
	"context"
	"errors"
	"net"
)

func DefaultServerSocketPath() string {
	return ""
}

func listenIPC(context.Context, string) (net.Listener, func(), error) {
	return nil, nil, errors.New("unix socket mode is not supported on windows")
}
