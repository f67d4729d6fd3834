package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/example/kvc-indicator/internal/logging"
)

const requestTimeout = 5 * time.Second

// Server answers requests from command line invocations.
type Server struct {
	unit    string
	refresh func()
}

// NewServer returns a Server reporting unit that calls refresh for every
// refresh request.
func NewServer(unit string, refresh func()) *Server {
	return &Server{unit: unit, refresh: refresh}
}

// Serve accepts connections on l until ctx is canceled. It closes l.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	defer l.Close()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logging.Warnf("ipc: accept error: %v", err)
			time.Sleep(250 * time.Millisecond)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		logging.Debugf("ipc: failed to decode request: %v", err)
		return
	}
	logging.Debugf("ipc: %s request", req.Command)

	resp := Response{Unit: s.unit, PID: os.Getpid()}
	switch req.Command {
	case CommandPing:
	case CommandRefresh:
		if s.refresh != nil {
			s.refresh()
		}
	default:
		resp = Response{Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
	if err := encoder.Encode(resp); err != nil {
		logging.Debugf("ipc: failed to write response: %v", err)
	}
}
