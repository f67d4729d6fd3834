// Package servicetest provides an in-memory service.Controller for tests.
package servicetest

import (
	"context"
	"errors"
	"sync"

	"github.com/example/kvc-indicator/internal/service"
)

// Fake is a service.Controller backed by a plain state field. Stop and Restart
// move the state unless a failure is queued.
type Fake struct {
	mu         sync.Mutex
	unit       string
	state      service.State
	probeErr   error
	stopErr    error
	restartErr error

	probes   int
	stops    int
	restarts int
	nudge    func()
}

// New returns a Fake for unit in the given state.
func New(unit string, state service.State) *Fake {
	return &Fake{unit: unit, state: state}
}

func (f *Fake) Unit() string { return f.unit }

func (f *Fake) Probe(context.Context) (service.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probeErr != nil {
		return 0, &service.ProbeError{Unit: f.unit, Err: f.probeErr}
	}
	return f.state, nil
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return &service.CommandError{Unit: f.unit, Op: "stop", Err: f.stopErr}
	}
	f.state = service.StateInactive
	return nil
}

func (f *Fake) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	if f.restartErr != nil {
		return &service.CommandError{Unit: f.unit, Op: "restart", Err: f.restartErr}
	}
	f.state = service.StateActive
	return nil
}

// Watch records nudge so tests can simulate external changes with Change.
func (f *Fake) Watch(_ context.Context, nudge func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nudge = nudge
	return nil
}

// Set changes the state as if the service manager had done so.
func (f *Fake) Set(state service.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

// Change sets the state and, when a watch is active, delivers a nudge.
func (f *Fake) Change(state service.State) {
	f.mu.Lock()
	f.state = state
	nudge := f.nudge
	f.mu.Unlock()
	if nudge != nil {
		nudge()
	}
}

// FailProbe makes subsequent probes fail with err; nil clears it.
func (f *Fake) FailProbe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

// FailStop makes subsequent stops fail with err; nil clears it.
func (f *Fake) FailStop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopErr = err
}

// FailRestart makes subsequent restarts fail with err; nil clears it.
func (f *Fake) FailRestart(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartErr = err
}

// Calls reports how many probes, stops and restarts were made.
func (f *Fake) Calls() (probes, stops, restarts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, f.stops, f.restarts
}

// ErrInjected is a convenient failure for tests.
var ErrInjected = errors.New("injected failure")
