//go:build !cgo

package menu

import (
	"context"
	"errors"

	"github.com/example/kvc-indicator/internal/dispatch"
)

// SystrayAvailable reports whether this build can show a desktop tray icon.
const SystrayAvailable = false

// ErrTrayUnavailable is returned when the binary was built without cgo.
var ErrTrayUnavailable = errors.New("system tray is unavailable without cgo support; use --console")

type unavailableTray struct{}

func newTrayController() Tray {
	return unavailableTray{}
}

func (unavailableTray) Run(context.Context, Layout, chan<- dispatch.Selection, func(dispatch.Sink)) error {
	return ErrTrayUnavailable
}

func (unavailableTray) Quit() {}
