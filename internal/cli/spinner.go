package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type checkDoneMsg struct {
	report *checkReport
	err    error
}

// spinnerModel shows a spinner until the check reports back.
type spinnerModel struct {
	spinner spinner.Model
	label   string
	run     tea.Cmd
	done    *checkDoneMsg
}

func (m spinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case checkDoneMsg:
		m.done = &msg
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.done = &checkDoneMsg{err: context.Canceled}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinnerModel) View() string {
	if m.done != nil {
		return ""
	}
	return m.spinner.View() + " " + m.label + "\n"
}

// runWithSpinner runs check while animating a spinner on out.
func runWithSpinner(ctx context.Context, out io.Writer, label string, check func(context.Context) (*checkReport, error)) (*checkReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	m := spinnerModel{
		spinner: sp,
		label:   label,
		run: func() tea.Msg {
			report, err := check(ctx)
			return checkDoneMsg{report: report, err: err}
		},
	}
	final, err := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	done := final.(spinnerModel).done
	if done == nil {
		return nil, context.Canceled
	}
	return done.report, done.err
}
