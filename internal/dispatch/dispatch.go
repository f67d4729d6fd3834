// Package dispatch turns tray selections into engine intents and renders the
// resulting outcomes onto the tray.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/kvc-indicator/internal/engine"
	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/presentation"
)

// SelectionID is the opaque identity of a menu entry assigned when the tray
// is built.
type SelectionID string

// Origin tells where a selection came from.
type Origin int

const (
	// OriginContextMenu is a click on an entry of the tray's context menu.
	OriginContextMenu Origin = iota + 1
	// OriginOther covers every other interaction (icon clicks, keyboard
	// shortcuts); these never trigger an intent.
	OriginOther
)

// Selection is a raw UI interaction.
type Selection struct {
	ID     SelectionID
	Origin Origin
}

// Sink is the set of tray handles outcomes are rendered onto.
type Sink interface {
	SetIcon(icon presentation.IconID)
	SetLabel(slot presentation.Slot, text string)
	// SetError shows msg as the current error indicator; an empty msg
	// clears it.
	SetError(msg string)
}

var slotIntents = map[presentation.Slot]engine.Intent{
	presentation.SlotStatus: engine.IntentRefresh,
	presentation.SlotAction: engine.IntentToggle,
	presentation.SlotQuit:   engine.IntentQuit,
}

// Dispatcher maps selections to intents and applies the outcomes. Its
// methods are meant to be called from a single event loop.
type Dispatcher struct {
	engine *engine.Engine

	mu       sync.RWMutex
	slots    map[SelectionID]presentation.Slot
	quitting bool
}

// New constructs a Dispatcher with no registered selections.
func New(eng *engine.Engine) *Dispatcher {
	return &Dispatcher{
		engine: eng,
		slots:  make(map[SelectionID]presentation.Slot),
	}
}

// Register binds a menu entry identity to slot.
func (d *Dispatcher) Register(id SelectionID, slot presentation.Slot) error {
	if id == "" {
		return fmt.Errorf("empty selection id for slot %q", slot)
	}
	if _, ok := slotIntents[slot]; !ok {
		return fmt.Errorf("unknown menu slot %q", slot)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.slots[id]; ok {
		return fmt.Errorf("selection id %s already bound to slot %q", id, existing)
	}
	d.slots[id] = slot
	return nil
}

// Lookup resolves sel to an intent. Selections that are not context menu
// clicks on a registered entry resolve to nothing.
func (d *Dispatcher) Lookup(sel Selection) (engine.Intent, bool) {
	if sel.Origin != OriginContextMenu {
		return 0, false
	}
	d.mu.RLock()
	slot, ok := d.slots[sel.ID]
	d.mu.RUnlock()
	if !ok {
		return 0, false
	}
	intent, ok := slotIntents[slot]
	return intent, ok
}

// Handle runs the intent behind sel and renders its outcome onto sink. ok is
// false when sel maps to no intent, in which case nothing happened. Once a
// quit outcome has been returned every later selection is ignored.
func (d *Dispatcher) Handle(ctx context.Context, sink Sink, sel Selection) (out engine.Outcome, ok bool) {
	intent, ok := d.Lookup(sel)
	if !ok {
		logging.Debugf("dispatch: ignoring selection %s (origin %d)", sel.ID, sel.Origin)
		return engine.Outcome{}, false
	}
	return d.run(ctx, sink, intent)
}

// Refresh resynchronises the tray with the service without a user selection.
func (d *Dispatcher) Refresh(ctx context.Context, sink Sink) (engine.Outcome, bool) {
	return d.run(ctx, sink, engine.IntentRefresh)
}

// Seed probes the service for the first presentation of a new tray.
func (d *Dispatcher) Seed(ctx context.Context) (presentation.Presentation, error) {
	p, state, err := d.engine.Seed(ctx)
	if err != nil {
		return presentation.Presentation{}, err
	}
	logging.Debugf("dispatch: initial state %s", state)
	return p, nil
}

func (d *Dispatcher) run(ctx context.Context, sink Sink, intent engine.Intent) (engine.Outcome, bool) {
	d.mu.Lock()
	if d.quitting {
		d.mu.Unlock()
		return engine.Outcome{}, false
	}
	if intent == engine.IntentQuit {
		d.quitting = true
	}
	d.mu.Unlock()

	out := d.engine.Handle(ctx, intent)
	switch {
	case out.Quit:
		logging.Debugf("dispatch: quit requested")
	case out.Err != nil:
		logging.Warnf("%s failed: %v", intent, out.Err)
		sink.SetError(out.Err.Error())
	case out.Apply:
		Render(sink, out.Presentation)
		sink.SetError("")
		logging.Debugf("dispatch: %s applied state %s (command %s)", intent, out.State, out.Command)
	}
	return out, true
}

// Render applies p to sink.
func Render(sink Sink, p presentation.Presentation) {
	sink.SetIcon(p.Icon)
	sink.SetLabel(presentation.SlotStatus, p.StatusLabel)
	sink.SetLabel(presentation.SlotAction, p.ActionLabel)
}
