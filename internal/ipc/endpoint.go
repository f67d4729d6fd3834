// Package ipc lets command line invocations reach the running indicator and
// keeps a second indicator from starting in the same session.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	socketName = "kvc-indicator.sock"

	// AddrEnv overrides the socket path.
	AddrEnv = "KVC_INDICATOR_SOCKET"
)

// ErrAlreadyRunning is returned by Listen when another indicator answers on
// the endpoint.
var ErrAlreadyRunning = errors.New("another indicator is already running")

// Endpoint describes where the running indicator listens.
type Endpoint struct {
	Network string
	Address string
}

// DefaultEndpoint resolves the per-user socket, honouring AddrEnv.
func DefaultEndpoint() Endpoint {
	if addr := strings.TrimSpace(os.Getenv(AddrEnv)); addr != "" {
		return Endpoint{Network: "unix", Address: addr}
	}
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return Endpoint{Network: "unix", Address: filepath.Join(dir, socketName)}
	}
	return Endpoint{
		Network: "unix",
		Address: filepath.Join(os.TempDir(), fmt.Sprintf("kvc-indicator-%d.sock", os.Getuid())),
	}
}

// Listen binds to the endpoint. A socket left behind by a crashed process is
// replaced; a live one yields ErrAlreadyRunning.
func (e Endpoint) Listen(ctx context.Context) (net.Listener, error) {
	if e.Network == "unix" {
		if err := e.clearStale(ctx); err != nil {
			return nil, err
		}
	}

	l, err := net.Listen(e.Network, e.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", e, err)
	}
	if e.Network == "unix" {
		if err := os.Chmod(e.Address, 0o600); err != nil {
			l.Close()
			return nil, fmt.Errorf("restrict socket permissions: %w", err)
		}
	}
	return l, nil
}

func (e Endpoint) clearStale(ctx context.Context) error {
	info, err := os.Lstat(e.Address)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", e.Address, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", e.Address)
	}

	dialCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if conn, err := e.DialContext(dialCtx); err == nil {
		conn.Close()
		return ErrAlreadyRunning
	}
	if err := os.Remove(e.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// DialContext establishes a client connection with sensible timeouts.
func (e Endpoint) DialContext(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: 5 * time.Second}
	return d.DialContext(ctx, e.Network, e.Address)
}

// String provides a readable representation for logs.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Network, e.Address)
}
