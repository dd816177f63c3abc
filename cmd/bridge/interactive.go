package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInteractiveCommand(e *env) *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "interactive <guest.wasm>",
		Short: "Call entry points of one prepared guest from a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal")
			}
			return e.withExecutor(cmd.Context(), args[0], func(ctx context.Context, exec runtime.Executor) error {
				m := newInteractiveModel(ctx, e, args[0], exec, &opts)
				_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
				return err
			})
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

type modelState int

const (
	stateSelectEntry modelState = iota
	stateInputArgs
	stateShowResult
)

type entryInfo struct {
	entry  abi.Entrypoint
	params []abi.Param
}

type callResultMsg struct {
	err    error
	result string
}

// interactiveModel keeps one context open across calls, so state written by
// one call is visible to the next.
type interactiveModel struct {
	ctx      context.Context
	env      *env
	exec     runtime.Executor
	opts     *callOptions
	err      error
	filename string
	result   string
	entries  []entryInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	calls    int
	state    modelState
}

func newInteractiveModel(ctx context.Context, e *env, filename string, exec runtime.Executor, opts *callOptions) *interactiveModel {
	entries := make([]entryInfo, 0, len(abi.Entrypoints))
	for _, entry := range abi.Entrypoints {
		fn, _ := abi.Lookup(abi.ApplicationExports, entry.New())
		entries = append(entries, entryInfo{entry: entry, params: fn.Params})
	}
	return &interactiveModel{
		ctx:      ctx,
		env:      e,
		exec:     exec,
		opts:     opts,
		filename: filename,
		entries:  entries,
		state:    stateSelectEntry,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectEntry && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectEntry && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectEntry:
				m.prepareInputs()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.callEntry

			case stateShowResult:
				m.state = stateSelectEntry
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectEntry
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectEntry
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.calls++
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// prepareInputs asks for the argument and, for call_session, the session
// state. Contexts and forwarded sessions come from the command flags.
func (m *interactiveModel) prepareInputs() {
	arg := textinput.New()
	arg.Prompt = "argument: "
	arg.Placeholder = "list<u8>"
	arg.Width = 40
	arg.Focus()
	m.inputs = []textinput.Model{arg}

	if m.entries[m.selected].entry == abi.CallSession {
		session := textinput.New()
		session.Prompt = "session: "
		session.Placeholder = "list<u8>"
		session.Width = 40
		session.SetValue(m.opts.SessionData)
		m.inputs = append(m.inputs, session)
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callEntry() tea.Msg {
	info := m.entries[m.selected]
	arg, err := m.opts.argument(m.inputs[0].Value())
	if err != nil {
		return callResultMsg{err: fmt.Errorf("decode argument: %w", err)}
	}
	opts := *m.opts
	if len(m.inputs) > 1 {
		opts.SessionData = m.inputs[1].Value()
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.env.cfg.Timeout)
	defer cancel()
	result, err := invoke(ctx, m.exec, info.entry, arg, &opts)
	if err != nil {
		m.env.log.Debug("guest call failed", zap.String("entry", string(info.entry)), zap.Error(err))
	}
	return callResultMsg{result: result, err: err}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bridge"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(typeStyle.Render(fmt.Sprintf("  [%s, %d calls]", m.exec.Backend(), m.calls)))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectEntry:
		b.WriteString("Select an entry point:\n\n")
		for i, info := range m.entries {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + string(info.entry)))
				b.WriteString(formatParams(info.params))
			} else {
				b.WriteString("  " + m.formatEntry(info))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		info := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(string(info.entry))))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		info := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(string(info.entry))))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatEntry(info entryInfo) string {
	return funcStyle.Render(string(info.entry)) + formatParams(info.params)
}

func formatParams(params []abi.Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Name + ": " + typeStyle.Render(abi.TypeName(p.Type))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
