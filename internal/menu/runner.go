package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/kvc-indicator/internal/config"
	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/engine"
	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/notify"
	"github.com/example/kvc-indicator/internal/presentation"
	"github.com/example/kvc-indicator/internal/service"
)

// Tray is a user interface able to show a Layout and report selections.
//
// Run builds the interface, calls ready once it can be updated through the
// given sink and blocks until Quit is called, ctx ends or the user closes the
// interface. Selections must be sent on the channel one at a time.
type Tray interface {
	Run(ctx context.Context, layout Layout, selections chan<- dispatch.Selection, ready func(dispatch.Sink)) error
	Quit()
}

// Runner owns the event loop of the indicator: it seeds the tray, feeds
// selections through the dispatcher and keeps the display in sync with the
// service through polling and watch notifications.
type Runner struct {
	ctl        service.Controller
	dispatcher *dispatch.Dispatcher
	tray       Tray
	notifier   notify.Notifier

	title           string
	tooltip         string
	icons           IconSet
	entries         []Entry
	timeout         time.Duration
	refreshInterval time.Duration
	watch           bool

	selections      chan dispatch.Selection
	refreshRequests chan struct{}
}

// Option customises a Runner.
type Option func(*Runner)

// WithTray replaces the platform tray.
func WithTray(tray Tray) Option {
	return func(r *Runner) { r.tray = tray }
}

// WithNotifier delivers error notifications through n.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// NewRunner validates cfg and prepares a Runner for ctl. Configuration
// problems surface here, before any window or menu exists.
func NewRunner(cfg *config.Config, ctl service.Controller, opts ...Option) (*Runner, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	icons, err := LoadIcons(cfg.Tray.Icons)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		ctl:             ctl,
		dispatcher:      dispatch.New(engine.New(ctl, table)),
		notifier:        notify.Nop{},
		title:           cfg.Service.Name,
		tooltip:         cfg.Tray.Tooltip,
		icons:           icons,
		timeout:         cfg.Service.Timeout,
		refreshInterval: cfg.Tray.RefreshInterval,
		watch:           cfg.Tray.Watch,
		selections:      make(chan dispatch.Selection),
		refreshRequests: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tray == nil {
		r.tray = newTrayController()
	}

	r.entries = defaultEntries(ctl.Unit(), table.LabelFor(presentation.SlotQuit, service.StateActive))
	for _, entry := range r.entries {
		if err := r.dispatcher.Register(entry.ID, entry.Slot); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Start probes the service, shows the tray and runs until the user quits or
// ctx is canceled. A failed initial probe is returned without showing
// anything.
func (r *Runner) Start(ctx context.Context) error {
	logging.Debugf("tray runner initialising for %s (refresh interval %s, watch %t)", r.ctl.Unit(), r.refreshInterval, r.watch)

	seedCtx, cancel := context.WithTimeout(ctx, r.timeout)
	initial, err := r.dispatcher.Seed(seedCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("initial probe: %w", err)
	}

	layout := Layout{
		Title:   r.title,
		Tooltip: r.tooltip,
		Icons:   r.icons,
		Initial: initial,
		Entries: r.entries,
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	sinks := make(chan dispatch.Sink, 1)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- r.loop(loopCtx, sinks)
	}()

	runErr := r.tray.Run(loopCtx, layout, r.selections, func(sink dispatch.Sink) {
		sinks <- sink
	})
	stop()
	loopErr := <-loopDone

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	case ctx.Err() != nil:
		logging.Infof("indicator for %s stopping", r.ctl.Unit())
		return ctx.Err()
	case loopErr != nil && !errors.Is(loopErr, context.Canceled):
		return loopErr
	}
	logging.Infof("indicator for %s exited", r.ctl.Unit())
	return nil
}

// RequestRefresh asks the loop to re-probe the service. Requests made while
// one is pending are coalesced.
func (r *Runner) RequestRefresh() {
	select {
	case r.refreshRequests <- struct{}{}:
	default:
	}
}

func (r *Runner) loop(ctx context.Context, sinks <-chan dispatch.Sink) error {
	var sink dispatch.Sink
	select {
	case <-ctx.Done():
		return ctx.Err()
	case sink = <-sinks:
	}
	sink = &notifyingSink{Sink: sink, notifier: r.notifier, title: r.ctl.Unit()}

	r.startWatch(ctx)

	var tick <-chan time.Time
	if r.refreshInterval > 0 {
		ticker := time.NewTicker(r.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.tray.Quit()
			return ctx.Err()
		case sel := <-r.selections:
			opCtx, cancel := r.operationContext(ctx)
			out, ok := r.dispatcher.Handle(opCtx, sink, sel)
			cancel()
			if ok && out.Quit {
				logging.Debugf("quit selected")
				r.tray.Quit()
				return nil
			}
		case <-tick:
			r.refresh(ctx, sink, "periodic")
		case <-r.refreshRequests:
			r.refresh(ctx, sink, "requested")
		}
	}
}

func (r *Runner) refresh(ctx context.Context, sink dispatch.Sink, reason string) {
	logging.Debugf("%s refresh", reason)
	opCtx, cancel := r.operationContext(ctx)
	defer cancel()
	r.dispatcher.Refresh(opCtx, sink)
}

// operationContext bounds a single service operation by the configured
// timeout. It is detached from ctx so an issued stop or restart is never
// abandoned halfway.
func (r *Runner) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

func (r *Runner) startWatch(ctx context.Context) {
	if !r.watch {
		return
	}
	watcher, ok := r.ctl.(service.Watcher)
	if !ok {
		logging.Debugf("%s backend cannot watch; relying on polling", r.ctl.Unit())
		return
	}
	if err := watcher.Watch(ctx, r.RequestRefresh); err != nil {
		logging.Warnf("watching %s failed, relying on polling: %v", r.ctl.Unit(), err)
		return
	}
	logging.Debugf("watching %s for state changes", r.ctl.Unit())
}

// notifyingSink forwards to the tray and raises a notification whenever a
// new error message appears.
type notifyingSink struct {
	dispatch.Sink
	notifier notify.Notifier
	title    string
	last     string
}

func (s *notifyingSink) SetError(msg string) {
	s.Sink.SetError(msg)
	if msg != "" && msg != s.last {
		if err := s.notifier.Notify(s.title, msg); err != nil {
			logging.Debugf("notification failed: %v", err)
		}
	}
	s.last = msg
}
