package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"procsweep/internal/app"
)

const historyLimit = 200

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	Status() (app.DaemonStatus, error)
	StartDaemon() (*app.DaemonHandle, error)
	History(context.Context, app.HistoryParams) ([]app.Report, error)
}

// phase filters cycled by the p key
var phaseFilters = []string{"", "before", "after"}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller

	list list.Model
	runs []app.Report

	daemonStatus app.DaemonStatus
	statusMsg    string
	// agent started from this TUI; stopped on quit
	handle *app.DaemonHandle

	err     error
	loading bool

	width  int
	height int

	phaseIdx int

	lastUpdated time.Time
}

// New constructs a TUI model with default styles.
func New(ctrl Controller) *Model {
	delegate := list.NewDefaultDelegate()
	lst := list.New([]list.Item{}, delegate, 0, 0)
	lst.Title = "Sweeps"
	lst.SetShowHelp(false)
	lst.SetFilteringEnabled(false)
	lst.DisableQuitKeybindings()

	return &Model{
		controller: ctrl,
		list:       lst,
		statusMsg:  "Checking agent status…",
		loading:    true,
	}
}

// Run spins up the Bubble Tea program with sensible defaults.
func Run(ctrl Controller) error {
	m := New(ctrl)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	if cerr := m.handle.Close(); err == nil {
		err = cerr
	}
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(checkDaemonStatusCmd(m.controller), loadRunsCmd(m.controller, m.phase()))
}

func (m *Model) phase() string {
	return phaseFilters[m.phaseIdx]
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 8 {
			m.list.SetSize(msg.Width, msg.Height-8)
		}

	case daemonStatusMsg:
		m.daemonStatus = msg.status
		if msg.status.Running {
			if msg.status.PID > 0 {
				m.statusMsg = fmt.Sprintf("Agent running (pid %d). Press r to refresh, q to quit.", msg.status.PID)
			} else {
				m.statusMsg = "Agent running. Press r to refresh, q to quit."
			}
		} else {
			m.statusMsg = "Agent is not running. Press s to start it."
			m.loading = false
			m.runs = nil
			m.list.SetItems(nil)
		}

	case runsLoadedMsg:
		m.loading = false
		m.err = nil
		m.runs = msg.runs
		items := make([]list.Item, 0, len(msg.runs))
		for _, run := range msg.runs {
			items = append(items, runItem{Report: run})
		}
		m.list.SetItems(items)
		m.lastUpdated = time.Now()

	case daemonStartedMsg:
		m.handle = msg.handle
		m.statusMsg = "Agent started."
		return m, tea.Batch(checkDaemonStatusCmd(m.controller), loadRunsCmd(m.controller, m.phase()))

	case errMsg:
		m.loading = false
		m.err = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(checkDaemonStatusCmd(m.controller), loadRunsCmd(m.controller, m.phase()))
		case "p":
			m.phaseIdx = (m.phaseIdx + 1) % len(phaseFilters)
			m.loading = true
			return m, loadRunsCmd(m.controller, m.phase())
		case "s":
			if !m.daemonStatus.Running {
				m.statusMsg = "Starting agent…"
				return m, startDaemonCmd(m.controller)
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().Bold(true)
	if !m.daemonStatus.Running {
		statusStyle = statusStyle.Foreground(lipgloss.Color("203"))
	} else {
		statusStyle = statusStyle.Foreground(lipgloss.Color("42"))
	}
	b.WriteString(statusStyle.Render(m.statusMsg))
	b.WriteByte('\n')

	if m.loading {
		b.WriteString("Loading sweeps…\n")
	} else if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	if len(m.list.Items()) == 0 && !m.loading && m.err == nil && m.daemonStatus.Running {
		b.WriteString("No sweeps recorded.\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteByte('\n')
	}

	if current := m.currentRun(); current != nil {
		detailStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1)
		b.WriteString(detailStyle.Render(detail(*current)))
		b.WriteByte('\n')
	}

	phase := m.phase()
	if phase == "" {
		phase = "all"
	}
	help := fmt.Sprintf("Commands: q quit • r reload • s start agent • p phase (%s)", phase)
	if !m.lastUpdated.IsZero() {
		help += fmt.Sprintf(" • last update %s", m.lastUpdated.Format(time.Kitchen))
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func detail(r app.Report) string {
	lines := []string{
		fmt.Sprintf("run=%d phase=%s outcome=%s", r.RunID, r.Phase, r.Outcome()),
		"workdir=" + r.WorkDir,
		fmt.Sprintf("candidates=%v self=%d spared=%v killed=%v", r.Candidates, r.Self, r.Spared, r.Killed),
		"services=[" + strings.Join(r.Services, ",") + "]",
		fmt.Sprintf("took=%s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)),
	}
	if r.Skipped != "" {
		lines = append(lines, "skipped="+r.Skipped)
	}
	for _, e := range r.Errors {
		lines = append(lines, "error: "+e)
	}
	return strings.Join(lines, "\n")
}

// runItem adapts app.Report to the bubbles list item interface.
type runItem struct {
	Report app.Report
}

func (r runItem) Title() string {
	return fmt.Sprintf("[run=%d] %-6s %s", r.Report.RunID, r.Report.Phase, r.Report.WorkDir)
}

func (r runItem) Description() string {
	return fmt.Sprintf("%s | killed=%d | %s", r.Report.Outcome(), len(r.Report.Killed), r.Report.StartedAt.Local().Format(time.DateTime))
}

func (r runItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s %s", r.Report.RunID, r.Report.Phase, r.Report.WorkDir, r.Report.Outcome())
}

func (m *Model) currentRun() *app.Report {
	if len(m.runs) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.runs) {
		return nil
	}
	return &m.runs[idx]
}

type daemonStatusMsg struct {
	status app.DaemonStatus
}

type runsLoadedMsg struct {
	runs []app.Report
}

type daemonStartedMsg struct {
	handle *app.DaemonHandle
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func checkDaemonStatusCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		status, err := ctrl.Status()
		if err != nil {
			return errMsg{err}
		}
		return daemonStatusMsg{status: status}
	}
}

func loadRunsCmd(ctrl Controller, phase string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		runs, err := ctrl.History(ctx, app.HistoryParams{
			Limit:   historyLimit,
			Phase:   phase,
			Timeout: 4 * time.Second,
		})
		if err != nil {
			return errMsg{err}
		}
		return runsLoadedMsg{runs: runs}
	}
}

func startDaemonCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		h, err := ctrl.StartDaemon()
		if err != nil {
			return errMsg{err}
		}
		// Give the agent a moment to bind the socket.
		time.Sleep(300 * time.Millisecond)
		return daemonStartedMsg{handle: h}
	}
}
