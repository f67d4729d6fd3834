package service

import "fmt"

// State is the running state of the managed unit as last reported by a probe.
type State int

const (
	// StateInactive means the unit is not running.
	StateInactive State = iota + 1
	// StateActive means the unit is running.
	StateActive
)

// Complement returns the opposite state. Invalid states are returned as-is.
func (s State) Complement() State {
	switch s {
	case StateActive:
		return StateInactive
	case StateInactive:
		return StateActive
	default:
		return s
	}
}

// Valid reports whether s is one of the two defined states.
func (s State) Valid() bool {
	return s == StateActive || s == StateInactive
}

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// activeStates lists systemd ActiveState values treated as running. Every other
// recognised value maps to StateInactive.
var activeStates = map[string]bool{
	"active":     true,
	"reloading":  true,
	"refreshing": true,
}

var knownStates = map[string]bool{
	"active":       true,
	"reloading":    true,
	"refreshing":   true,
	"inactive":     true,
	"failed":       true,
	"activating":   true,
	"deactivating": true,
	"maintenance":  true,
}

// ParseActiveState maps a systemd ActiveState string onto a State.
func ParseActiveState(raw string) (State, error) {
	if !knownStates[raw] {
		return 0, fmt.Errorf("unrecognised active state %q", raw)
	}
	if activeStates[raw] {
		return StateActive, nil
	}
	return StateInactive, nil
}
