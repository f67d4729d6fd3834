//go:build cgo

package menu

import (
	"context"
	"sync"

	"github.com/getlantern/systray"

	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/presentation"
)

// SystrayAvailable reports whether this build can show a desktop tray icon.
const SystrayAvailable = true

const maxErrorLabel = 80

type systrayController struct {
	mu        sync.Mutex
	icons     IconSet
	tooltip   string
	items     map[presentation.Slot]*systray.MenuItem
	errorItem *systray.MenuItem
}

func newTrayController() Tray {
	return &systrayController{}
}

func (c *systrayController) Run(ctx context.Context, layout Layout, selections chan<- dispatch.Selection, ready func(dispatch.Sink)) error {
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			systray.Quit()
		case <-done:
		}
	}()

	systray.Run(func() {
		c.build(ctx, layout, selections)
		ready(c)
	}, func() {
		close(done)
	})
	return nil
}

func (c *systrayController) Quit() {
	systray.Quit()
}

func (c *systrayController) build(ctx context.Context, layout Layout, selections chan<- dispatch.Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.icons = layout.Icons
	c.tooltip = layout.Tooltip
	c.items = make(map[presentation.Slot]*systray.MenuItem, len(layout.Entries))

	if icon := layout.Icons.Icon(layout.Initial.Icon); icon != nil {
		systray.SetIcon(icon)
	}
	systray.SetTooltip(layout.Tooltip)

	for _, entry := range layout.Entries {
		if entry.Slot == presentation.SlotQuit {
			c.errorItem = systray.AddMenuItem("", "Last error")
			c.errorItem.Disable()
			c.errorItem.Hide()
			systray.AddSeparator()
		}
		mi := systray.AddMenuItem(layout.Label(entry), entry.Description)
		c.items[entry.Slot] = mi
		go forwardClicks(ctx, mi.ClickedCh, entry.ID, selections)
	}
	logging.Debugf("tray built with %d entries", len(layout.Entries))
}

func (c *systrayController) SetIcon(id presentation.IconID) {
	c.mu.Lock()
	icon := c.icons.Icon(id)
	c.mu.Unlock()
	if icon == nil {
		logging.Warnf("no image for tray icon %q", id)
		return
	}
	systray.SetIcon(icon)
}

func (c *systrayController) SetLabel(slot presentation.Slot, text string) {
	c.mu.Lock()
	mi := c.items[slot]
	c.mu.Unlock()
	if mi != nil {
		mi.SetTitle(text)
	}
}

func (c *systrayController) SetError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg == "" {
		systray.SetTooltip(c.tooltip)
		if c.errorItem != nil {
			c.errorItem.Hide()
		}
		return
	}

	systray.SetTooltip(c.tooltip + "\n" + msg)
	if c.errorItem != nil {
		c.errorItem.SetTitle(truncate("Error: "+msg, maxErrorLabel))
		c.errorItem.SetTooltip(msg)
		c.errorItem.Show()
	}
}

// forwardClicks turns clicks on a menu item into selections until ctx ends.
func forwardClicks(ctx context.Context, ch <-chan struct{}, id dispatch.SelectionID, out chan<- dispatch.Selection) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- dispatch.Selection{ID: id, Origin: dispatch.OriginContextMenu}:
			case <-ctx.Done():
				return
			}
		}
	}
}
