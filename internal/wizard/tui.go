package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6BCB77")).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	promptStyle = lipgloss.NewStyle().
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)

	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6BCB77"))
)

// previewLines caps how much of a paste text is shown when the clipboard
// is unavailable and the user has to copy it from the screen.
const previewLines = 40

type advancedMsg struct {
	step Step
	err  error
}

// Model is the Bubble Tea front end for Machine.
type Model struct {
	ctx     context.Context
	machine *Machine
	input   textinput.Model

	// Cached while a check runs so View never touches machine concurrently.
	state  State
	prompt string
	last   Step

	busy    bool
	errMsg  string
	aborted bool
	width   int
}

// NewModel returns a model driving m.
func NewModel(ctx context.Context, m *Machine) Model {
	ti := textinput.New()
	ti.Placeholder = "orchestrate.example.com"
	ti.CharLimit = 253
	ti.Width = 50
	ti.Focus()

	return Model{
		ctx:     ctx,
		machine: m,
		input:   ti,
		state:   m.State(),
		prompt:  m.Prompt(),
	}
}

// Aborted reports whether the user quit before Done.
func (m Model) Aborted() bool { return m.aborted }

// Domain is the confirmed domain, if any.
func (m Model) Domain() string { return m.machine.Domain() }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = m.state != Done
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			if m.state == Done {
				return m, tea.Quit
			}
			return m.submit()
		}

	case advancedMsg:
		m.busy = false
		m.apply(msg.step, msg.err)
		if m.state == Done {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	m.input.SetValue("")

	if m.state == Test {
		// The check blocks; run it off the update loop.
		m.busy = true
		m.errMsg = ""
		machine, ctx := m.machine, m.ctx
		return m, func() tea.Msg {
			step, err := machine.Advance(ctx, value)
			return advancedMsg{step: step, err: err}
		}
	}

	step, err := m.machine.Advance(m.ctx, value)
	m.apply(step, err)
	return m, nil
}

func (m *Model) apply(step Step, err error) {
	m.state = m.machine.State()
	m.prompt = m.machine.Prompt()
	m.last = step
	m.errMsg = ""
	if err != nil {
		m.errMsg = err.Error()
	}

	switch m.state {
	case AwaitDomain:
		m.input.Placeholder = "orchestrate.example.com"
	case ConfirmConfig:
		m.input.Placeholder = "y/n"
	default:
		m.input.Placeholder = ""
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("⬡ CONNECT YOUR ASSISTANT"))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d", int(m.state)+1, int(Done)+1)))
	b.WriteString("\n\n")

	if m.state == Done {
		b.WriteString(doneStyle.Render("✓ " + m.prompt))
		b.WriteString("\n")
		return b.String()
	}

	if m.busy {
		b.WriteString(promptStyle.Render("Checking endpoint..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(promptStyle.Render(m.prompt))
	b.WriteString("\n")

	if m.last.CopyErr != nil && m.last.Text != "" {
		b.WriteString(errorStyle.Render("⚠ Clipboard unavailable: " + m.last.CopyErr.Error() + "\nCopy the text below by hand."))
		b.WriteString("\n")
		b.WriteString(textStyle.Render(preview(m.last.Text)))
		b.WriteString("\n")
	}

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("⚠ " + m.errMsg))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(stepStyle.Render("enter: continue · esc: quit"))
	return b.String()
}

func preview(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= previewLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:previewLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-previewLines)
}

// Run drives the wizard in the terminal until it finishes or the user quits.
func Run(ctx context.Context, m *Machine, opts ...tea.ProgramOption) (Model, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewModel(ctx, m), opts...).Run()
	if err != nil {
		return Model{}, fmt.Errorf("wizard UI failed: %w", err)
	}
	return final.(Model), nil
}
