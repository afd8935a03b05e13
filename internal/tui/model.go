// Package tui is a terminal front end to the data editor. It drives an
// editor.Session the same way the browser overlay does, so the load, edit,
// save and close rules are shared.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/errors"
)

// MinWidth is the narrowest usable terminal.
const MinWidth = 40

// loadedMsg reports that the session finished opening its target.
type loadedMsg struct{ err error }

// savedMsg reports the outcome of a save.
type savedMsg struct{ err error }

// Model is the bubbletea model of the terminal editor.
type Model struct {
	ctx     context.Context
	session *editor.Session
	target  editor.Target

	input textarea.Model
	// shown is the text last pushed into the textarea; key presses that do
	// not change it are not edits.
	shown string
	snap  editor.Snapshot

	Width  int
	Height int

	confirmDiscard bool
	status         string
	saved          bool
	Err            error
}

// NewModel creates the editor for target. The session must be closed.
func NewModel(ctx context.Context, session *editor.Session, target editor.Target) Model {
	input := textarea.New()
	input.Placeholder = "{}"
	input.CharLimit = 0
	input.MaxHeight = 0
	input.ShowLineNumbers = true
	input.SetWidth(80)
	input.SetHeight(20)

	return Model{
		ctx:     ctx,
		session: session,
		target:  target,
		input:   input,
		snap:    session.Snapshot(),
	}
}

// Saved reports whether the editor exited after a successful save.
func (m Model) Saved() bool {
	return m.saved
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.open())
}

func (m Model) open() tea.Cmd {
	session, target, ctx := m.session, m.target, m.ctx
	return func() tea.Msg {
		return loadedMsg{err: session.Open(ctx, target)}
	}
}

func (m Model) save() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return savedMsg{err: session.Save(ctx)}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.resize()
		return m, nil

	case loadedMsg:
		m.snap = m.session.Snapshot()
		m.show(m.snap.Text)
		m.input.Focus()
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Load failed; showing an empty object"
		}
		return m, nil

	case savedMsg:
		m.snap = m.session.Snapshot()
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Save failed; edits kept"
			return m, nil
		}
		m.saved = true
		m.status = "Saved"
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		_ = m.session.Close(true)
		return m, tea.Quit

	case "esc":
		if err := m.session.Close(m.confirmDiscard); err != nil {
			if errors.CodeOf(err) == errors.ErrCodeUnsavedChanges {
				m.confirmDiscard = true
				m.status = "Unsaved changes. Press esc again to discard them."
				return m, nil
			}
			m.Err = err
			return m, nil
		}
		return m, tea.Quit

	case "ctrl+s":
		m.confirmDiscard = false
		if !m.snap.CanSave {
			m.status = m.saveBlockedReason()
			return m, nil
		}
		m.status = "Saving…"
		m.Err = nil
		m.snap.State = editor.StateSaving
		m.snap.StateName = editor.StateSaving.String()
		return m, m.save()

	case "ctrl+f":
		m.confirmDiscard = false
		if err := m.session.Format(); err != nil {
			m.status = "Cannot format invalid JSON"
			return m, nil
		}
		m.snap = m.session.Snapshot()
		m.show(m.snap.Text)
		m.status = "Formatted"
		return m, nil
	}

	if m.snap.State == editor.StateLoading || m.snap.State == editor.StateSaving {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != m.shown {
		m.shown = value
		m.confirmDiscard = false
		m.status = ""
		if err := m.session.Edit(value); err != nil {
			m.Err = err
		}
		m.snap = m.session.Snapshot()
	}
	return m, cmd
}

func (m Model) saveBlockedReason() string {
	switch {
	case m.snap.State == editor.StateSaving:
		return "A save is already in progress"
	case m.snap.ParseError != nil:
		return "Fix the JSON before saving"
	case !m.snap.Dirty:
		return "Nothing to save"
	default:
		return "Cannot save while " + m.snap.StateName
	}
}

func (m *Model) show(text string) {
	m.input.SetValue(text)
	m.shown = m.input.Value()
}

func (m *Model) resize() {
	width := m.Width - 4
	if width < MinWidth {
		width = MinWidth
	}
	height := m.Height - 8
	if height < 3 {
		height = 3
	}
	m.input.SetWidth(width)
	m.input.SetHeight(height)
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("%s  %s", m.target.DataPath, subtleStyle.Render(m.target.Site))
	state := stateStyles[m.snap.StateName].Render(m.snap.StateName)
	b.WriteString(titleStyle.Render("devlens") + " " + title + "  " + state + "\n")

	b.WriteString(frameStyle.Render(m.input.View()) + "\n")

	switch {
	case m.snap.ParseError != nil:
		b.WriteString(errorStyle.Render("Invalid JSON: " + m.snap.ParseError.Error()))
	case m.snap.Dirty:
		b.WriteString(dirtyStyle.Render("Valid JSON, unsaved changes"))
	default:
		b.WriteString(validStyle.Render("Valid JSON"))
	}
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(errorStyle.Render(m.Err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(subtleStyle.Render(m.status) + "\n")
	}

	b.WriteString(helpStyle.Render("ctrl+s save • ctrl+f format • esc close • ctrl+c quit"))
	return lipgloss.NewStyle().MaxWidth(max(m.Width, MinWidth)).Render(b.String())
}

// Run opens target in a full-screen editor and blocks until it exits. It
// reports whether the data was saved.
func Run(ctx context.Context, session *editor.Session, target editor.Target) (bool, error) {
	p := tea.NewProgram(NewModel(ctx, session, target), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("error running editor: %w", err)
	}
	return final.(Model).Saved(), nil
}
