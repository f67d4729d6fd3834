package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownUnit indicates the service manager has no unit by the configured name.
var ErrUnknownUnit = errors.New("unit not found")

// ProbeError reports that the running state of a unit could not be determined.
type ProbeError struct {
	Unit string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Unit, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// CommandError reports that a stop or restart request failed.
type CommandError struct {
	Unit   string
	Op     string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Unit, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }
