package menu

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/presentation"
)

// Entry is one menu item managed by the tray.
type Entry struct {
	ID          dispatch.SelectionID
	Slot        presentation.Slot
	Label       string
	Description string
}

// Layout is everything a tray controller needs to build its menu.
type Layout struct {
	Title   string
	Tooltip string
	Icons   IconSet
	Initial presentation.Presentation
	Entries []Entry
}

// Label returns the text entry shows in the initial presentation.
func (l Layout) Label(entry Entry) string {
	switch entry.Slot {
	case presentation.SlotStatus:
		return l.Initial.StatusLabel
	case presentation.SlotAction:
		return l.Initial.ActionLabel
	default:
		return entry.Label
	}
}

// defaultEntries creates one entry per slot in display order, each with a
// fresh selection identity.
func defaultEntries(unit, quitLabel string) []Entry {
	descriptions := map[presentation.Slot]string{
		presentation.SlotStatus: fmt.Sprintf("Refresh the status of %s", unit),
		presentation.SlotAction: fmt.Sprintf("Start or stop %s", unit),
		presentation.SlotQuit:   "Exit the indicator",
	}

	entries := make([]Entry, 0, len(presentation.Slots))
	for _, slot := range presentation.Slots {
		entry := Entry{
			ID:          dispatch.SelectionID(uuid.NewString()),
			Slot:        slot,
			Description: descriptions[slot],
		}
		if slot == presentation.SlotQuit {
			entry.Label = quitLabel
		}
		entries = append(entries, entry)
	}
	return entries
}
