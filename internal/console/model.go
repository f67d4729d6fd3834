package console

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/example/kvc-indicator/internal/dispatch"
	"github.com/example/kvc-indicator/internal/menu"
	"github.com/example/kvc-indicator/internal/presentation"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	startedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	ctx        context.Context
	selections chan<- dispatch.Selection

	title   string
	entries []menu.Entry
	labels  map[presentation.Slot]string
	icon    presentation.IconID
	errMsg  string
	cursor  int

	help help.Model
}

func newModel(ctx context.Context, layout menu.Layout, selections chan<- dispatch.Selection) model {
	labels := make(map[presentation.Slot]string, len(layout.Entries))
	for _, entry := range layout.Entries {
		labels[entry.Slot] = layout.Label(entry)
	}
	return model{
		ctx:        ctx,
		selections: selections,
		title:      layout.Title,
		entries:    layout.Entries,
		labels:     labels,
		icon:       layout.Initial.Icon,
		help:       help.New(),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case iconMsg:
		m.icon = presentation.IconID(msg)
	case labelMsg:
		m.labels[msg.slot] = msg.text
	case errorMsg:
		m.errMsg = string(msg)
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Exit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Select):
			if len(m.entries) == 0 {
				return m, nil
			}
			return m, m.selectCmd(m.entries[m.cursor].ID)
		}
	}
	return m, nil
}

// selectCmd hands the selection to the event loop without blocking the UI.
func (m model) selectCmd(id dispatch.SelectionID) tea.Cmd {
	ctx, out := m.ctx, m.selections
	return func() tea.Msg {
		select {
		case out <- dispatch.Selection{ID: id, Origin: dispatch.OriginContextMenu}:
		case <-ctx.Done():
		}
		return nil
	}
}

func (m model) View() string {
	var b strings.Builder

	indicator := stoppedStyle.Render("○")
	if m.icon == presentation.IconStarted {
		indicator = startedStyle.Render("●")
	}
	b.WriteString(indicator + " " + titleStyle.Render(m.title) + "\n\n")

	for i, entry := range m.entries {
		if entry.Slot == presentation.SlotQuit {
			b.WriteString(dividerStyle.Render(strings.Repeat("─", 24)) + "\n")
		}
		label := m.labels[entry.Slot]
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> "+label) + "\n")
		} else {
			b.WriteString("  " + label + "\n")
		}
	}

	if m.errMsg != "" {
		b.WriteString("\n" + errStyle.Render("Error: "+m.errMsg) + "\n")
	}

	return frameStyle.Render(b.String()) + "\n" + m.help.View(keys) + "\n"
}
