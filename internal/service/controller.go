package service

import (
	"context"
	"fmt"
	"strings"
)

// Controller queries and drives a single service manager unit. Every call is
// synchronous; callers bound them with the context.
type Controller interface {
	Unit() string
	Probe(ctx context.Context) (State, error)
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Watcher is implemented by controllers that can notice state changes made
// outside the application. Watch returns once the watch is established and
// calls nudge from its own goroutine until ctx is canceled. A nudge carries
// no state; receivers are expected to probe again.
type Watcher interface {
	Watch(ctx context.Context, nudge func()) error
}

// Backend selects how the service manager is reached.
type Backend string

const (
	BackendSystemctl Backend = "systemctl"
	BackendDBus      Backend = "dbus"
)

// Options configures a Controller.
type Options struct {
	Unit    string
	Backend Backend
	// User targets the per-user service manager instead of the system one.
	User bool
}

// New constructs the Controller for the requested backend.
func New(opts Options) (Controller, error) {
	unit := UnitName(opts.Unit)
	if unit == "" {
		return nil, fmt.Errorf("service name is required")
	}

	switch opts.Backend {
	case BackendSystemctl, "":
		return newSystemctl(unit, opts.User)
	case BackendDBus:
		return newDBus(unit, opts.User), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", opts.Backend)
	}
}

// UnitName appends the .service suffix when name carries no unit type.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
