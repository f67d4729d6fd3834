package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Send delivers command to the indicator listening on e.
func (e Endpoint) Send(ctx context.Context, command string) (Response, error) {
	conn, err := e.DialContext(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("connect to indicator at %s: %w", e, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(Request{Command: command}); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", command, err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", command, err)
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
