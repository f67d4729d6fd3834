package menu

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/kvc-indicator/internal/config"
	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/notify"
	"github.com/example/kvc-indicator/internal/presentation"
	"github.com/example/kvc-indicator/internal/service"
	"github.com/example/kvc-indicator/internal/service/servicetest"
)

type fakeTray struct {
	mu         sync.Mutex
	layout     Layout
	selections chan<- dispatch.Selection
	icon       presentation.IconID
	labels     map[presentation.Slot]string
	errMsg     string
	runs       int

	ready    chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func newFakeTray() *fakeTray {
	return &fakeTray{
		labels: make(map[presentation.Slot]string),
		ready:  make(chan struct{}),
		quit:   make(chan struct{}),
	}
}

func (f *fakeTray) Run(ctx context.Context, layout Layout, selections chan<- dispatch.Selection, ready func(dispatch.Sink)) error {
	f.mu.Lock()
	f.runs++
	f.layout = layout
	f.selections = selections
	f.icon = layout.Initial.Icon
	for _, entry := range layout.Entries {
		f.labels[entry.Slot] = layout.Label(entry)
	}
	f.mu.Unlock()

	ready(f)
	close(f.ready)

	select {
	case <-ctx.Done():
	case <-f.quit:
	}
	return nil
}

func (f *fakeTray) Quit() {
	f.quitOnce.Do(func() { close(f.quit) })
}

func (f *fakeTray) SetIcon(id presentation.IconID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.icon = id
}

func (f *fakeTray) SetLabel(slot presentation.Slot, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[slot] = text
}

func (f *fakeTray) SetError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errMsg = msg
}

func (f *fakeTray) snapshot() (presentation.IconID, map[presentation.Slot]string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	labels := make(map[presentation.Slot]string, len(f.labels))
	for k, v := range f.labels {
		labels[k] = v
	}
	return f.icon, labels, f.errMsg
}

func (f *fakeTray) currentIcon() presentation.IconID {
	icon, _, _ := f.snapshot()
	return icon
}

func (f *fakeTray) currentError() string {
	_, _, msg := f.snapshot()
	return msg
}

func (f *fakeTray) click(t *testing.T, slot presentation.Slot) {
	t.Helper()
	f.send(t, f.entry(t, slot).ID, dispatch.OriginContextMenu)
}

func (f *fakeTray) send(t *testing.T, id dispatch.SelectionID, origin dispatch.Origin) {
	t.Helper()
	f.mu.Lock()
	out := f.selections
	f.mu.Unlock()
	select {
	case out <- dispatch.Selection{ID: id, Origin: origin}:
	case <-time.After(2 * time.Second):
		t.Fatalf("selection %s was not consumed", id)
	}
}

func (f *fakeTray) entry(t *testing.T, slot presentation.Slot) Entry {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.layout.Entries {
		if entry.Slot == slot {
			return entry
		}
	}
	t.Fatalf("no entry for slot %q", slot)
	return Entry{}
}

type countingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *countingNotifier) Notify(_, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Service.Timeout = time.Second
	cfg.Tray.RefreshInterval = 0
	cfg.Tray.Watch = false
	return cfg
}

type harness struct {
	fake     *servicetest.Fake
	tray     *fakeTray
	runner   *Runner
	notifier *countingNotifier
	done     chan error
	cancel   context.CancelFunc
}

func startRunner(t *testing.T, state service.State, cfg *config.Config) *harness {
	t.Helper()

	h := &harness{
		fake:     servicetest.New("kerio-kvc.service", state),
		tray:     newFakeTray(),
		notifier: &countingNotifier{},
		done:     make(chan error, 1),
	}
	runner, err := NewRunner(cfg, h.fake, WithTray(h.tray), WithNotifier(h.notifier))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner = runner

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- runner.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("runner did not stop")
		}
	})

	select {
	case <-h.tray.ready:
	case err := <-h.done:
		t.Fatalf("runner exited before the tray was ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("tray never became ready")
	}
	return h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestRunnerSeedsTrayFromProbe(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	icon, labels, errMsg := h.tray.snapshot()
	if icon != presentation.IconStarted {
		t.Fatalf("expected started icon, got %q", icon)
	}
	if labels[presentation.SlotStatus] != "Status: Started" {
		t.Fatalf("unexpected status label %q", labels[presentation.SlotStatus])
	}
	if labels[presentation.SlotAction] != "Stop kerio-kvc service" {
		t.Fatalf("unexpected action label %q", labels[presentation.SlotAction])
	}
	if labels[presentation.SlotQuit] != "Quit" {
		t.Fatalf("unexpected quit label %q", labels[presentation.SlotQuit])
	}
	if errMsg != "" {
		t.Fatalf("unexpected error indicator %q", errMsg)
	}

	seen := make(map[dispatch.SelectionID]bool)
	for _, entry := range h.tray.layout.Entries {
		if entry.ID == "" || seen[entry.ID] {
			t.Fatalf("selection ids must be unique and non-empty: %+v", h.tray.layout.Entries)
		}
		seen[entry.ID] = true
	}
	if len(seen) != len(presentation.Slots) {
		t.Fatalf("expected %d entries, got %d", len(presentation.Slots), len(seen))
	}
}

func TestRunnerToggleStopsActiveService(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	h.tray.click(t, presentation.SlotAction)
	waitFor(t, time.Second, func() bool { return h.tray.currentIcon() == presentation.IconStopped })

	_, labels, _ := h.tray.snapshot()
	if labels[presentation.SlotAction] != "Start kerio-kvc service" {
		t.Fatalf("unexpected action label %q", labels[presentation.SlotAction])
	}
	if _, stops, restarts := h.fake.Calls(); stops != 1 || restarts != 0 {
		t.Fatalf("expected one stop, got stops=%d restarts=%d", stops, restarts)
	}
}

func TestRunnerToggleRestartsInactiveService(t *testing.T) {
	h := startRunner(t, service.StateInactive, testConfig())

	h.tray.click(t, presentation.SlotAction)
	waitFor(t, time.Second, func() bool { return h.tray.currentIcon() == presentation.IconStarted })

	if _, stops, restarts := h.fake.Calls(); stops != 0 || restarts != 1 {
		t.Fatalf("expected one restart, got stops=%d restarts=%d", stops, restarts)
	}
}

func TestRunnerQuitEndsStart(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	h.tray.click(t, presentation.SlotQuit)

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
		h.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit after quit")
	}
	if probes, stops, restarts := h.fake.Calls(); probes != 1 || stops != 0 || restarts != 0 {
		t.Fatalf("quit must not touch the service: probes=%d stops=%d restarts=%d", probes, stops, restarts)
	}
}

func TestRunnerIgnoresSelectionsFromOtherOrigins(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	h.tray.send(t, h.tray.entry(t, presentation.SlotAction).ID, dispatch.OriginOther)
	h.tray.send(t, "unregistered", dispatch.OriginContextMenu)
	// A refresh round-trip guarantees the previous selections were handled.
	h.tray.click(t, presentation.SlotStatus)
	waitFor(t, time.Second, func() bool {
		probes, _, _ := h.fake.Calls()
		return probes == 2
	})

	if _, stops, restarts := h.fake.Calls(); stops != 0 || restarts != 0 {
		t.Fatalf("ignored selections issued commands: stops=%d restarts=%d", stops, restarts)
	}
}

func TestRunnerInitialProbeFailureShowsNothing(t *testing.T) {
	fake := servicetest.New("kerio-kvc.service", service.StateActive)
	fake.FailProbe(servicetest.ErrInjected)
	tray := newFakeTray()

	runner, err := NewRunner(testConfig(), fake, WithTray(tray))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	err = runner.Start(context.Background())
	if !errors.Is(err, servicetest.ErrInjected) {
		t.Fatalf("expected injected probe failure, got %v", err)
	}
	var probeErr *service.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected ProbeError, got %T", err)
	}
	if tray.runs != 0 {
		t.Fatalf("tray must not be shown after a failed initial probe")
	}
}

func TestRunnerRequestRefreshPicksUpExternalChange(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	h.fake.Set(service.StateInactive)
	h.runner.RequestRefresh()
	h.runner.RequestRefresh()

	waitFor(t, time.Second, func() bool { return h.tray.currentIcon() == presentation.IconStopped })
}

func TestRunnerWatchNudgeRefreshes(t *testing.T) {
	cfg := testConfig()
	cfg.Tray.Watch = true
	h := startRunner(t, service.StateActive, cfg)

	waitFor(t, time.Second, func() bool {
		h.fake.Change(service.StateInactive)
		return h.tray.currentIcon() == presentation.IconStopped
	})
	if _, stops, _ := h.fake.Calls(); stops != 0 {
		t.Fatalf("watch refresh must not issue commands")
	}
}

func TestRunnerPollsOnInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Tray.RefreshInterval = 10 * time.Millisecond
	h := startRunner(t, service.StateInactive, cfg)

	h.fake.Set(service.StateActive)
	waitFor(t, time.Second, func() bool { return h.tray.currentIcon() == presentation.IconStarted })
}

func TestRunnerCommandFailureSurfacesOnceAndRecovers(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())
	h.fake.FailStop(servicetest.ErrInjected)

	h.tray.click(t, presentation.SlotAction)
	waitFor(t, time.Second, func() bool { return h.tray.currentError() != "" })
	h.tray.click(t, presentation.SlotAction)
	waitFor(t, time.Second, func() bool {
		_, stops, _ := h.fake.Calls()
		return stops == 2
	})

	if got := h.tray.currentIcon(); got != presentation.IconStarted {
		t.Fatalf("failed stop must keep the previous presentation, got %q", got)
	}
	// The second failure carries the same message and is rendered before
	// the click that follows is accepted.
	h.tray.click(t, presentation.SlotStatus)
	waitFor(t, time.Second, func() bool { return h.tray.currentError() == "" })
	if n := h.notifier.count(); n != 1 {
		t.Fatalf("expected one notification for a repeated error, got %d", n)
	}

	h.fake.FailStop(nil)
	h.tray.click(t, presentation.SlotAction)
	waitFor(t, time.Second, func() bool { return h.tray.currentIcon() == presentation.IconStopped })
}

func TestRunnerStopsWhenContextCanceled(t *testing.T) {
	h := startRunner(t, service.StateActive, testConfig())

	h.cancel()
	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNewRunnerRejectsAmbiguousLabels(t *testing.T) {
	cfg := testConfig()
	cfg.Labels.Action.Inactive = cfg.Labels.Action.Active

	_, err := NewRunner(cfg, servicetest.New("kerio-kvc.service", service.StateActive), WithTray(newFakeTray()))
	var cfgErr *presentation.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Slot != presentation.SlotAction {
		t.Fatalf("expected action slot, got %q", cfgErr.Slot)
	}
}

func TestNotifyingSinkOnlyNotifiesNewMessages(t *testing.T) {
	tray := newFakeTray()
	n := &countingNotifier{}
	sink := &notifyingSink{Sink: tray, notifier: n, title: "kerio-kvc"}

	sink.SetError("boom")
	sink.SetError("boom")
	sink.SetError("")
	sink.SetError("boom")

	if got := n.count(); got != 2 {
		t.Fatalf("expected 2 notifications, got %d", got)
	}
}

var _ notify.Notifier = (*countingNotifier)(nil)
