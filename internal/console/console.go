// Package console renders the indicator menu in a terminal for desktops
// without a system tray.
package console

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/menu"
	"github.com/example/kvc-indicator/internal/presentation"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Tray shows the menu as an interactive terminal list. It satisfies
// menu.Tray.
type Tray struct {
	options []tea.ProgramOption

	mu  sync.Mutex
	ref *programRef
}

// New returns a console tray. Options are passed to tea.NewProgram.
func New(options ...tea.ProgramOption) *Tray {
	return &Tray{options: options}
}

func (t *Tray) Run(ctx context.Context, layout menu.Layout, selections chan<- dispatch.Selection, ready func(dispatch.Sink)) error {
	ref := &programRef{}
	p := tea.NewProgram(newModel(ctx, layout, selections), t.options...)
	ref.Set(p)

	t.mu.Lock()
	t.ref = ref
	t.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	ready(sink{ref: ref})
	_, err := p.Run()
	ref.Clear()
	return err
}

// Quit closes the terminal menu.
func (t *Tray) Quit() {
	t.mu.Lock()
	ref := t.ref
	t.mu.Unlock()
	if ref != nil {
		ref.Send(tea.Quit())
	}
}

type iconMsg presentation.IconID

type labelMsg struct {
	slot presentation.Slot
	text string
}

type errorMsg string

// sink forwards updates into the program's event loop.
type sink struct {
	ref *programRef
}

func (s sink) SetIcon(icon presentation.IconID) { s.ref.Send(iconMsg(icon)) }

func (s sink) SetLabel(slot presentation.Slot, text string) {
	s.ref.Send(labelMsg{slot: slot, text: text})
}

func (s sink) SetError(msg string) { s.ref.Send(errorMsg(msg)) }

var _ menu.Tray = (*Tray)(nil)
