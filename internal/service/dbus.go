package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/example/kvc-indicator/internal/logging"
)

const (
	systemdDest      = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	managerInterface = "org.freedesktop.systemd1.Manager"
	unitInterface    = "org.freedesktop.systemd1.Unit"
	propsInterface   = "org.freedesktop.DBus.Properties"
)

// dbusBackend talks to systemd's D-Bus API directly.
type dbusBackend struct {
	unit    string
	user    bool
	connect func() (*dbus.Conn, error)

	mu   sync.Mutex
	conn *dbus.Conn
}

func newDBus(unit string, user bool) *dbusBackend {
	connect := func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }
	if user {
		connect = func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }
	}
	return &dbusBackend{unit: unit, user: user, connect: connect}
}

func (d *dbusBackend) Unit() string { return d.unit }

func (d *dbusBackend) bus() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := d.connect()
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

// Close releases the cached bus connection.
func (d *dbusBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *dbusBackend) Probe(ctx context.Context) (State, error) {
	conn, err := d.bus()
	if err != nil {
		return 0, &ProbeError{Unit: d.unit, Err: err}
	}

	path, err := loadUnit(ctx, conn, d.unit)
	if err != nil {
		return 0, &ProbeError{Unit: d.unit, Err: err}
	}
	unit := conn.Object(systemdDest, path)

	loadState, err := unitProperty(ctx, unit, "LoadState")
	if err != nil {
		return 0, &ProbeError{Unit: d.unit, Err: err}
	}
	if loadState == "not-found" {
		return 0, &ProbeError{Unit: d.unit, Err: ErrUnknownUnit}
	}

	activeState, err := unitProperty(ctx, unit, "ActiveState")
	if err != nil {
		return 0, &ProbeError{Unit: d.unit, Err: err}
	}
	state, err := ParseActiveState(activeState)
	if err != nil {
		return 0, &ProbeError{Unit: d.unit, Err: err}
	}
	logging.Debugf("dbus: %s LoadState=%s ActiveState=%s", d.unit, loadState, activeState)
	return state, nil
}

func (d *dbusBackend) Stop(ctx context.Context) error {
	return d.runJob(ctx, "stop", "StopUnit")
}

func (d *dbusBackend) Restart(ctx context.Context) error {
	return d.runJob(ctx, "restart", "RestartUnit")
}

// runJob enqueues a unit job and blocks until systemd reports it removed.
func (d *dbusBackend) runJob(ctx context.Context, op, method string) error {
	fail := func(err error) error {
		return &CommandError{Unit: d.unit, Op: op, Err: err}
	}

	conn, err := d.bus()
	if err != nil {
		return fail(err)
	}

	signals := make(chan *dbus.Signal, 64)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(systemdPath),
		dbus.WithMatchInterface(managerInterface),
		dbus.WithMatchMember("JobRemoved"),
	}
	if err := conn.AddMatchSignalContext(ctx, match...); err != nil {
		return fail(fmt.Errorf("subscribe to job signals: %w", err))
	}
	defer conn.RemoveMatchSignal(match...)

	manager := conn.Object(systemdDest, systemdPath)
	// JobRemoved is only emitted to subscribed clients. A repeated Subscribe
	// from the same connection is rejected, which is harmless.
	if call := manager.CallWithContext(ctx, managerInterface+".Subscribe", 0); call.Err != nil {
		logging.Debugf("dbus: subscribe: %v", call.Err)
	}

	var job dbus.ObjectPath
	if err := manager.CallWithContext(ctx, managerInterface+"."+method, 0, d.unit, "replace").Store(&job); err != nil {
		return fail(err)
	}
	logging.Debugf("dbus: %s %s queued as %s", op, d.unit, job)

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case sig, ok := <-signals:
			if !ok {
				return fail(errors.New("bus connection closed"))
			}
			result, matched := jobResult(sig, job)
			if !matched {
				continue
			}
			switch result {
			case "done", "skipped":
				return nil
			default:
				return fail(fmt.Errorf("job %s", result))
			}
		}
	}
}

// Watch subscribes to PropertiesChanged on the unit object over a dedicated
// connection and nudges whenever ActiveState changes.
func (d *dbusBackend) Watch(ctx context.Context, nudge func()) error {
	conn, err := d.connect()
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	path, err := loadUnit(ctx, conn, d.unit)
	if err != nil {
		conn.Close()
		return err
	}

	if err := conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to unit properties: %w", err)
	}
	if call := conn.Object(systemdDest, systemdPath).CallWithContext(ctx, managerInterface+".Subscribe", 0); call.Err != nil {
		logging.Debugf("dbus: subscribe: %v", call.Err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					logging.Warnf("dbus: watch connection for %s closed", d.unit)
					return
				}
				if activeStateChanged(sig) {
					logging.Debugf("dbus: %s ActiveState changed", d.unit)
					nudge()
				}
			}
		}
	}()
	return nil
}

func loadUnit(ctx context.Context, conn *dbus.Conn, unit string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	err := conn.Object(systemdDest, systemdPath).
		CallWithContext(ctx, managerInterface+".LoadUnit", 0, unit).
		Store(&path)
	if err != nil {
		return "", fmt.Errorf("load unit: %w", err)
	}
	return path, nil
}

func unitProperty(ctx context.Context, unit dbus.BusObject, name string) (string, error) {
	var value dbus.Variant
	err := unit.CallWithContext(ctx, propsInterface+".Get", 0, unitInterface, name).Store(&value)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	str, ok := value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s type %s", name, value.Signature())
	}
	return str, nil
}

// jobResult extracts the result of a JobRemoved(u id, o job, s unit, s result)
// signal when it refers to job.
func jobResult(sig *dbus.Signal, job dbus.ObjectPath) (string, bool) {
	if sig == nil || sig.Name != managerInterface+".JobRemoved" || len(sig.Body) < 4 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || path != job {
		return "", false
	}
	result, _ := sig.Body[3].(string)
	return result, true
}

// activeStateChanged reports whether a PropertiesChanged signal for the Unit
// interface touches ActiveState, either with a value or as invalidated.
func activeStateChanged(sig *dbus.Signal) bool {
	if sig == nil || sig.Name != propsInterface+".PropertiesChanged" || len(sig.Body) < 2 {
		return false
	}
	if iface, _ := sig.Body[0].(string); iface != unitInterface {
		return false
	}
	if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
		if _, ok := changed["ActiveState"]; ok {
			return true
		}
	}
	if len(sig.Body) > 2 {
		if invalidated, ok := sig.Body[2].([]string); ok {
			for _, name := range invalidated {
				if name == "ActiveState" {
					return true
				}
			}
		}
	}
	return false
}
