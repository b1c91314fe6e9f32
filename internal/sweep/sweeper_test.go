package sweep

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sweepFixture struct {
	runner    *fakeRunner
	bundle    *countingFS
	describer *fakeDescriber
	waits     []time.Duration
	out       bytes.Buffer
	root      string
	handle    string
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "node")
	return &sweepFixture{
		runner:    newFakeRunner(),
		bundle:    bundle(),
		describer: &fakeDescriber{},
		root:      root,
		handle:    filepath.Join(root, "handle.exe"),
	}
}

func (f *sweepFixture) sweeper(settings Settings, self ProcessID, logger *zap.Logger) *Sweeper {
	return New(Options{
		Settings:    settings,
		Runner:      f.runner,
		Describer:   f.describer,
		Provisioner: &Provisioner{Bundle: f.bundle},
		Self:        func() ProcessID { return self },
		Sleep:       recordSleep(&f.waits),
		Output:      &f.out,
		Logger:      logger,
	})
}

func TestSweepKillsLockHoldersExceptSelf(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs[f.handle] = "a.exe pid: 100 type: File\nb.exe pid: 200 type: File\nc.exe pid: 300 type: File\n"

	rep, err := f.sweeper(Settings{}, 200, nil).After(context.Background(), Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	require.NoError(t, err)
	assert.Equal(t, PhaseAfter, rep.Phase)
	assert.Empty(t, rep.Skipped)
	assert.Equal(t, []ProcessID{100, 200, 300}, rep.Candidates)
	assert.Equal(t, ProcessID(200), rep.Self)
	assert.Equal(t, []ProcessID{100, 300}, rep.Killed)
	assert.Empty(t, rep.Errors)
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))
	assert.Equal(t, 1, f.bundle.Opens())

	kills := f.runner.CallsTo("taskkill.exe")
	require.Len(t, kills, 1)
	assert.ElementsMatch(t, []string{"/PID 100", "/PID 300"}, pairs(kills[0].args))
	assert.Contains(t, f.out.String(), "(I'm 200)")
}

func TestSweepOnlySelfFoundKillsNothing(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs[f.handle] = "agent.exe pid: 77 type: File\n"

	rep, err := f.sweeper(Settings{}, 77, nil).Before(context.Background(), Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	require.NoError(t, err)
	assert.Empty(t, rep.Killed)
	assert.Empty(t, f.runner.CallsTo("taskkill.exe"))
	assert.Empty(t, f.waits)
}

func TestSweepSparesProtectedProcesses(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs[f.handle] = "a.exe pid: 100 type: File\nprocsweep.exe pid: 300 type: File\nagent.exe pid: 7 type: File\n"

	target := Target{WorkDir: `C:\ws`, ToolRoot: f.root, Protect: []ProcessID{300, 7, 999}}
	rep, err := f.sweeper(Settings{}, 7, nil).Before(context.Background(), target)

	require.NoError(t, err)
	assert.Equal(t, []ProcessID{7, 100, 300}, rep.Candidates)
	assert.Equal(t, []ProcessID{300}, rep.Spared)
	assert.Equal(t, []ProcessID{100}, rep.Killed)
	kills := f.runner.CallsTo("taskkill.exe")
	require.Len(t, kills, 1)
	assert.Equal(t, []string{"/F", "/T", "/PID", "100"}, kills[0].args)
}

func TestSweepIsNoopOnUnixAndWhenDisabled(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		target   Target
		reason   string
	}{
		{name: "unix", target: Target{WorkDir: "/ws", ToolRoot: "/node", Unix: true}, reason: SkipUnix},
		{name: "disabled", settings: Settings{Disabled: true}, target: Target{WorkDir: `C:\ws`, ToolRoot: `C:\node`}, reason: SkipDisabled},
		{name: "no root", target: Target{WorkDir: `C:\ws`}, reason: SkipNoToolRoot},
		{name: "no workspace", target: Target{ToolRoot: `C:\node`}, reason: SkipNoWorkDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSweepFixture(t)
			s := f.sweeper(tt.settings, 1, nil)

			before, err := s.Before(context.Background(), tt.target)
			require.NoError(t, err)
			after, err := s.After(context.Background(), tt.target)
			require.NoError(t, err)

			assert.Equal(t, tt.reason, before.Skipped)
			assert.Equal(t, tt.reason, after.Skipped)
			assert.Empty(t, f.runner.Calls())
			assert.Equal(t, 0, f.bundle.Opens())
		})
	}
}

func TestSweepInstallFailureSkipsRound(t *testing.T) {
	f := newSweepFixture(t)
	core, logs := observer.New(zap.ErrorLevel)
	s := New(Options{
		Runner:      f.runner,
		Provisioner: &Provisioner{},
		Sleep:       recordSleep(&f.waits),
		Logger:      zap.New(core),
	})

	rep, err := s.Before(context.Background(), Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	require.NoError(t, err)
	assert.Equal(t, SkipInstallFailed, rep.Skipped)
	assert.Len(t, rep.Errors, 1)
	assert.Empty(t, f.runner.Calls())
	assert.Equal(t, 1, logs.FilterMessage("could not install enumeration tool").Len())
}

func TestSweepContainsPanics(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs[f.handle] = "a.exe pid: 100 type: File\n"
	f.describer.panicWith = "boom"
	core, logs := observer.New(zap.ErrorLevel)

	rep, err := f.sweeper(Settings{Diagnostics: true}, 1, zap.New(core)).After(context.Background(), Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	require.NoError(t, err)
	assert.Equal(t, []string{"cleanup failed: boom"}, rep.Errors)
	assert.Empty(t, f.runner.CallsTo("taskkill.exe"))
	assert.Equal(t, 1, logs.FilterMessage("cleanup failed").Len())
}

func TestSweepReportsCancellation(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs[f.handle] = "a.exe pid: 100 type: File\n"
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{
		Runner:      f.runner,
		Provisioner: &Provisioner{Bundle: f.bundle},
		Self:        func() ProcessID { return 1 },
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := s.After(ctx, Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.runner.CallsTo("taskkill.exe"))
}

func TestSweepCarriesSettingsIntoDiscovery(t *testing.T) {
	f := newSweepFixture(t)
	f.runner.outputs["sc"] = "SERVICE_NAME: BuildCache\n"
	f.runner.outputs["tasklist"] = taskListOutput

	settings := Settings{ExtraNames: []string{"notepad"}, ServicePatterns: []string{"buildcache"}, GracePeriod: 2 * time.Second}
	rep, err := f.sweeper(settings, 1, nil).Before(context.Background(), Target{WorkDir: `C:\ws`, ToolRoot: f.root})

	require.NoError(t, err)
	assert.Equal(t, []string{"BuildCache"}, rep.Services)
	assert.Equal(t, []ProcessID{4444}, rep.Killed)
	assert.Equal(t, []time.Duration{2 * time.Second}, f.waits)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("before")
	require.NoError(t, err)
	assert.Equal(t, PhaseBefore, p)

	_, err = ParsePhase("during")
	assert.Error(t, err)
}
