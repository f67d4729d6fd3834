// Package engine decides, for a freshly probed service state and a user
// intent, which control command to issue and what the tray should display.
package engine

import (
	"context"
	"fmt"

	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/presentation"
	"github.com/example/kvc-indicator/internal/service"
)

// Intent is the logical action behind a menu selection.
type Intent int

const (
	IntentRefresh Intent = iota + 1
	IntentToggle
	IntentQuit
)

func (i Intent) String() string {
	switch i {
	case IntentRefresh:
		return "refresh"
	case IntentToggle:
		return "toggle"
	case IntentQuit:
		return "quit"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Command is the control command issued while handling an intent.
type Command int

const (
	CommandNone Command = iota
	CommandStop
	CommandRestart
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandStop:
		return "stop"
	case CommandRestart:
		return "restart"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Outcome is the result of handling one intent. When Apply is false the tray
// must be left untouched; Err then explains why.
type Outcome struct {
	Intent  Intent
	Command Command
	// Probed is the state observed before any command was issued.
	Probed service.State
	// State is the state the presentation reflects.
	State        service.State
	Presentation presentation.Presentation
	Apply        bool
	Quit         bool
	Err          error
}

// Engine turns intents into outcomes. It keeps no service state between
// calls: every outcome that touches the presentation is based on a probe made
// while handling that intent.
type Engine struct {
	ctl   service.Controller
	table *presentation.Table
}

// New constructs an Engine.
func New(ctl service.Controller, table *presentation.Table) *Engine {
	return &Engine{ctl: ctl, table: table}
}

// Seed probes once and returns the presentation for the initial tray.
func (e *Engine) Seed(ctx context.Context) (presentation.Presentation, service.State, error) {
	state, err := e.ctl.Probe(ctx)
	if err != nil {
		return presentation.Presentation{}, 0, err
	}
	return e.table.Compute(state), state, nil
}

// Handle runs intent to completion.
func (e *Engine) Handle(ctx context.Context, intent Intent) Outcome {
	switch intent {
	case IntentRefresh:
		return e.refresh(ctx)
	case IntentToggle:
		return e.toggle(ctx)
	case IntentQuit:
		return Outcome{Intent: IntentQuit, Quit: true}
	default:
		return Outcome{Intent: intent, Err: fmt.Errorf("unsupported intent %s", intent)}
	}
}

func (e *Engine) refresh(ctx context.Context) Outcome {
	out := Outcome{Intent: IntentRefresh}
	state, err := e.ctl.Probe(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	out.Probed = state
	out.State = state
	out.Presentation = e.table.Compute(state)
	out.Apply = true
	return out
}

func (e *Engine) toggle(ctx context.Context) Outcome {
	out := Outcome{Intent: IntentToggle}

	// The service may have changed since the menu was drawn.
	current, err := e.ctl.Probe(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	out.Probed = current

	switch current {
	case service.StateActive:
		out.Command = CommandStop
		err = e.ctl.Stop(ctx)
	case service.StateInactive:
		// Restart rather than start so a half-stopped instance is replaced.
		out.Command = CommandRestart
		err = e.ctl.Restart(ctx)
	default:
		out.Err = &service.ProbeError{Unit: e.ctl.Unit(), Err: fmt.Errorf("invalid state %s", current)}
		return out
	}
	if err != nil {
		logging.Debugf("engine: %s of %s failed: %v", out.Command, e.ctl.Unit(), err)
		out.Err = err
		return out
	}

	out.State = current.Complement()
	out.Presentation = e.table.Compute(out.State)
	out.Apply = true
	logging.Debugf("engine: %s %s -> %s", out.Command, current, out.State)
	return out
}
