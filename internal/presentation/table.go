// Package presentation maps a service state onto the icon and menu labels
// shown by the tray.
package presentation

import (
	"fmt"

	"github.com/example/kvc-indicator/internal/service"
)

// Slot identifies a menu entry whose label the tray manages.
type Slot string

const (
	SlotStatus Slot = "status"
	SlotAction Slot = "action"
	SlotQuit   Slot = "quit"
)

// Slots lists the menu slots in display order.
var Slots = []Slot{SlotStatus, SlotAction, SlotQuit}

// IconID names one of the tray icons.
type IconID string

const (
	IconStarted IconID = "started"
	IconStopped IconID = "stopped"
)

// Labels holds the text of a slot for each service state.
type Labels struct {
	Active   string
	Inactive string
}

// Config describes the labels of every slot. Quit carries a single label as
// it does not depend on state.
type Config struct {
	Status Labels
	Action Labels
	Quit   string
}

// Presentation is everything the tray displays for a given state.
type Presentation struct {
	Icon        IconID
	StatusLabel string
	ActionLabel string
}

// ConfigError reports a table that cannot label every slot in every state.
type ConfigError struct {
	Slot   Slot
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("menu slot %q: %s", e.Slot, e.Reason)
}

// Table is the immutable state to presentation mapping built at startup.
type Table struct {
	labels map[Slot]Labels
	icons  map[service.State]IconID
}

// NewTable validates cfg and builds a Table.
func NewTable(cfg Config) (*Table, error) {
	for _, stateful := range []struct {
		slot   Slot
		labels Labels
	}{
		{SlotStatus, cfg.Status},
		{SlotAction, cfg.Action},
	} {
		switch {
		case stateful.labels.Active == "":
			return nil, &ConfigError{Slot: stateful.slot, Reason: "missing label for active state"}
		case stateful.labels.Inactive == "":
			return nil, &ConfigError{Slot: stateful.slot, Reason: "missing label for inactive state"}
		case stateful.labels.Active == stateful.labels.Inactive:
			return nil, &ConfigError{Slot: stateful.slot, Reason: "active and inactive labels must differ"}
		}
	}
	if cfg.Quit == "" {
		return nil, &ConfigError{Slot: SlotQuit, Reason: "missing label"}
	}

	return &Table{
		labels: map[Slot]Labels{
			SlotStatus: cfg.Status,
			SlotAction: cfg.Action,
			SlotQuit:   {Active: cfg.Quit, Inactive: cfg.Quit},
		},
		icons: map[service.State]IconID{
			service.StateActive:   IconStarted,
			service.StateInactive: IconStopped,
		},
	}, nil
}

// LabelFor returns the label of slot in state. It panics on an unknown slot
// or state, which NewTable and the State type rule out for valid callers.
func (t *Table) LabelFor(slot Slot, state service.State) string {
	labels, ok := t.labels[slot]
	if !ok {
		panic(fmt.Sprintf("presentation: unknown slot %q", slot))
	}
	switch state {
	case service.StateActive:
		return labels.Active
	case service.StateInactive:
		return labels.Inactive
	default:
		panic(fmt.Sprintf("presentation: invalid state %s", state))
	}
}

// IconFor returns the icon shown in state.
func (t *Table) IconFor(state service.State) IconID {
	icon, ok := t.icons[state]
	if !ok {
		panic(fmt.Sprintf("presentation: invalid state %s", state))
	}
	return icon
}

// Compute derives the presentation for state.
func (t *Table) Compute(state service.State) Presentation {
	return Presentation{
		Icon:        t.IconFor(state),
		StatusLabel: t.LabelFor(SlotStatus, state),
		ActionLabel: t.LabelFor(SlotAction, state),
	}
}
