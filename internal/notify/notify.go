// Package notify delivers desktop notifications.
package notify

import "github.com/gen2brain/beeep"

// Notifier shows a short message to the user outside the tray menu.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop sends notifications through the platform notification service.
type Desktop struct {
	// Icon is an optional path to an image shown with the notification.
	Icon string
}

func (d Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, d.Icon)
}

// Func adapts a function to Notifier.
type Func func(title, message string) error

func (f Func) Notify(title, message string) error { return f(title, message) }

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
