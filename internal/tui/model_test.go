package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procsweep/internal/app"
)

type fakeController struct {
	status  app.DaemonStatus
	runs    []app.Report
	phases  []string
	started int
}

func (f *fakeController) Status() (app.DaemonStatus, error) { return f.status, nil }

func (f *fakeController) StartDaemon() (*app.DaemonHandle, error) {
	f.started++
	return nil, errors.New("no agent in tests")
}

func (f *fakeController) History(ctx context.Context, params app.HistoryParams) ([]app.Report, error) {
	f.phases = append(f.phases, params.Phase)
	return f.runs, nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelShowsRuns(t *testing.T) {
	ctrl := &fakeController{
		status: app.DaemonStatus{Running: true, PID: 42},
		runs: []app.Report{
			{RunID: 2, Phase: "after", WorkDir: `C:\ws`, Killed: []int{100}},
			{RunID: 1, Phase: "before", WorkDir: `C:\ws`, Skipped: "disabled"},
		},
	}
	m := New(ctrl)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(checkDaemonStatusCmd(ctrl)())
	m.Update(loadRunsCmd(ctrl, "")())

	view := m.View()
	assert.Contains(t, view, "Agent running (pid 42)")
	assert.Contains(t, view, "run=2 phase=after outcome=killed")
	assert.Len(t, m.list.Items(), 2)
}

func TestModelCyclesPhaseFilter(t *testing.T) {
	ctrl := &fakeController{status: app.DaemonStatus{Running: true}}
	m := New(ctrl)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	_, cmd := m.Update(key("p"))
	require.NotNil(t, cmd)
	cmd()
	_, cmd = m.Update(key("p"))
	cmd()

	assert.Equal(t, []string{"before", "after"}, ctrl.phases)
	assert.True(t, strings.Contains(m.View(), "p phase (after)"))
}

func TestModelStartsAgentOnlyWhenStopped(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(checkDaemonStatusCmd(ctrl)())
	assert.Contains(t, m.View(), "Agent is not running")

	_, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	msg := cmd()
	m.Update(msg)

	assert.Equal(t, 1, ctrl.started)
	assert.Contains(t, m.View(), "no agent in tests")
}
