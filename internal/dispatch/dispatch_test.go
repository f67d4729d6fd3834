package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/example/kvc-indicator/internal/engine"
	"github.com/example/kvc-indicator/internal/presentation"
	"github.com/example/kvc-indicator/internal/service"
	"github.com/example/kvc-indicator/internal/service/servicetest"
)

type recordingSink struct {
	icon   presentation.IconID
	labels map[presentation.Slot]string
	err    string
	writes int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{labels: make(map[presentation.Slot]string)}
}

func (s *recordingSink) SetIcon(icon presentation.IconID) {
	s.icon = icon
	s.writes++
}

func (s *recordingSink) SetLabel(slot presentation.Slot, text string) {
	s.labels[slot] = text
	s.writes++
}

func (s *recordingSink) SetError(msg string) {
	s.err = msg
	s.writes++
}

func (s *recordingSink) presentation() presentation.Presentation {
	return presentation.Presentation{
		Icon:        s.icon,
		StatusLabel: s.labels[presentation.SlotStatus],
		ActionLabel: s.labels[presentation.SlotAction],
	}
}

const (
	statusID SelectionID = "status-id"
	actionID SelectionID = "action-id"
	quitID   SelectionID = "quit-id"
)

func newTestDispatcher(t *testing.T, state service.State) (*Dispatcher, *servicetest.Fake) {
	t.Helper()
	table, err := presentation.NewTable(presentation.Config{
		Status: presentation.Labels{Active: "Status: Started", Inactive: "Status: Stopped"},
		Action: presentation.Labels{Active: "Stop kerio-kvc service", Inactive: "Start kerio-kvc service"},
		Quit:   "Quit",
	})
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}
	fake := servicetest.New("kerio-kvc.service", state)
	d := New(engine.New(fake, table))
	for id, slot := range map[SelectionID]presentation.Slot{
		statusID: presentation.SlotStatus,
		actionID: presentation.SlotAction,
		quitID:   presentation.SlotQuit,
	} {
		if err := d.Register(id, slot); err != nil {
			t.Fatalf("Register(%s) returned error: %v", id, err)
		}
	}
	return d, fake
}

func click(id SelectionID) Selection {
	return Selection{ID: id, Origin: OriginContextMenu}
}

func TestLookup(t *testing.T) {
	d, _ := newTestDispatcher(t, service.StateActive)

	tests := []struct {
		sel    Selection
		want   engine.Intent
		wantOK bool
	}{
		{sel: click(statusID), want: engine.IntentRefresh, wantOK: true},
		{sel: click(actionID), want: engine.IntentToggle, wantOK: true},
		{sel: click(quitID), want: engine.IntentQuit, wantOK: true},
		{sel: click("unknown")},
		{sel: Selection{ID: actionID, Origin: OriginOther}},
		{sel: Selection{ID: actionID}},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.sel)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("Lookup(%+v) = %s, %v; want %s, %v", tt.sel, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegisterRejectsDuplicatesAndUnknownSlots(t *testing.T) {
	d, _ := newTestDispatcher(t, service.StateActive)

	if err := d.Register(statusID, presentation.SlotAction); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
	if err := d.Register("other", presentation.Slot("settings")); err == nil {
		t.Fatalf("expected unknown slot to be rejected")
	}
	if err := d.Register("", presentation.SlotQuit); err == nil {
		t.Fatalf("expected empty id to be rejected")
	}
}

func TestUnmappedSelectionHasNoSideEffects(t *testing.T) {
	d, fake := newTestDispatcher(t, service.StateActive)
	sink := newRecordingSink()

	for _, sel := range []Selection{click("unknown"), {ID: actionID, Origin: OriginOther}} {
		if _, ok := d.Handle(context.Background(), sink, sel); ok {
			t.Fatalf("expected %+v to be ignored", sel)
		}
	}
	if sink.writes != 0 {
		t.Fatalf("ignored selections wrote %d times to the tray", sink.writes)
	}
	if probes, stops, restarts := fake.Calls(); probes+stops+restarts != 0 {
		t.Fatalf("ignored selections reached the service: %d/%d/%d", probes, stops, restarts)
	}
}

func TestToggleActiveRendersStopped(t *testing.T) {
	d, _ := newTestDispatcher(t, service.StateActive)
	sink := newRecordingSink()

	out, ok := d.Handle(context.Background(), sink, click(actionID))
	if !ok || out.Err != nil {
		t.Fatalf("unexpected outcome %+v ok=%v", out, ok)
	}
	want := presentation.Presentation{
		Icon:        presentation.IconStopped,
		StatusLabel: "Status: Stopped",
		ActionLabel: "Start kerio-kvc service",
	}
	if got := sink.presentation(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStatusRefreshesWithoutCommand(t *testing.T) {
	d, fake := newTestDispatcher(t, service.StateInactive)
	sink := newRecordingSink()
	Render(sink, presentation.Presentation{Icon: presentation.IconStopped, StatusLabel: "Status: Stopped", ActionLabel: "Start kerio-kvc service"})

	fake.Set(service.StateActive)
	if _, ok := d.Handle(context.Background(), sink, click(statusID)); !ok {
		t.Fatalf("expected status selection to be handled")
	}
	want := presentation.Presentation{
		Icon:        presentation.IconStarted,
		StatusLabel: "Status: Started",
		ActionLabel: "Stop kerio-kvc service",
	}
	if got := sink.presentation(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if _, stops, restarts := fake.Calls(); stops+restarts != 0 {
		t.Fatalf("status selection issued a command")
	}
}

func TestFailedRestartKeepsPresentationAndSurfacesError(t *testing.T) {
	d, fake := newTestDispatcher(t, service.StateInactive)
	sink := newRecordingSink()

	seed, err := d.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	Render(sink, seed)
	before := sink.presentation()

	fake.FailRestart(servicetest.ErrInjected)
	out, ok := d.Handle(context.Background(), sink, click(actionID))
	if !ok {
		t.Fatalf("expected toggle to be handled")
	}
	if out.Apply {
		t.Fatalf("failed restart must not be applied")
	}
	if got := sink.presentation(); got != before {
		t.Fatalf("presentation changed after failure: %+v vs %+v", got, before)
	}
	if !strings.Contains(sink.err, "restart") {
		t.Fatalf("expected error indicator to mention restart, got %q", sink.err)
	}

	// A later successful refresh clears the indicator.
	fake.FailRestart(nil)
	d.Refresh(context.Background(), sink)
	if sink.err != "" {
		t.Fatalf("expected error indicator to be cleared, got %q", sink.err)
	}
}

func TestQuitSignalsOnceWithoutRendering(t *testing.T) {
	d, fake := newTestDispatcher(t, service.StateActive)
	sink := newRecordingSink()

	out, ok := d.Handle(context.Background(), sink, click(quitID))
	if !ok || !out.Quit {
		t.Fatalf("expected quit outcome, got %+v ok=%v", out, ok)
	}
	if sink.writes != 0 {
		t.Fatalf("quit wrote %d times to the tray", sink.writes)
	}

	if out, ok := d.Handle(context.Background(), sink, click(quitID)); ok || out.Quit {
		t.Fatalf("second quit must be ignored, got %+v ok=%v", out, ok)
	}
	if _, ok := d.Handle(context.Background(), sink, click(actionID)); ok {
		t.Fatalf("selections after quit must be ignored")
	}
	if probes, _, _ := fake.Calls(); probes != 0 {
		t.Fatalf("service probed after quit")
	}
}
