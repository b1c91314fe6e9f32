// Package sweep finds and force-kills the processes that keep a work
// directory locked on Windows, so the directory can be deleted or renamed.
//
// A sweep installs handle.exe on the worker, stops configured services,
// collects lock holders of the directory plus processes selected by name,
// drops its own pid, waits a grace period and then issues one
// `taskkill /F /T` for everything left. Every step is best effort: failures
// end up in the log and the Report, never in the caller's error path, with
// the exception of context cancellation.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Phase names the lifecycle point a sweep runs at.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// ParsePhase validates a phase label.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(raw) {
	case PhaseBefore, PhaseAfter:
		return Phase(raw), nil
	}
	return "", fmt.Errorf("unknown phase %q (want %q or %q)", raw, PhaseBefore, PhaseAfter)
}

// Skip reasons recorded in Report.Skipped.
const (
	SkipDisabled      = "disabled"
	SkipUnix          = "platform does not lock directories"
	SkipNoToolRoot    = "no tool root"
	SkipNoWorkDir     = "no work directory"
	SkipInstallFailed = "tool install failed"
)

// Settings carries the per-job configuration of a sweep.
type Settings struct {
	Disabled        bool
	ExtraNames      []string
	ServicePatterns []string
	Diagnostics     bool
	GracePeriod     time.Duration
}

// Target describes where a sweep runs.
type Target struct {
	WorkDir string
	// ToolRoot is the worker directory that receives handle.exe.
	ToolRoot string
	// Unix marks platforms where open handles do not block directory
	// deletion; sweeps there are no-ops.
	Unix bool
	// Protect lists processes spared besides the sweeper itself, such as the
	// client that asked an agent to sweep.
	Protect []ProcessID
}

// Report is the outcome of one Before or After invocation.
type Report struct {
	Phase      Phase
	WorkDir    string
	Skipped    string
	Services   []string
	Candidates []ProcessID
	Self       ProcessID
	Spared     []ProcessID
	Killed     []ProcessID
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Options wires a Sweeper. Zero values fall back to the local machine.
type Options struct {
	Settings    Settings
	Runner      Runner
	Describer   Describer
	Provisioner *Provisioner
	Self        func() ProcessID
	Sleep       SleepFunc
	Encoding    encoding.Encoding
	Tools       Tools
	Output      io.Writer
	Logger      *zap.Logger
}

// Sweeper runs the cleanup procedure at the before/after lifecycle points.
type Sweeper struct {
	settings    Settings
	runner      Runner
	describer   Describer
	provisioner *Provisioner
	self        func() ProcessID
	sleep       SleepFunc
	encoding    encoding.Encoding
	tools       Tools
	out         io.Writer
	log         *zap.Logger
}

// New builds a Sweeper from opts.
func New(opts Options) *Sweeper {
	s := &Sweeper{
		settings:    opts.Settings,
		runner:      opts.Runner,
		describer:   opts.Describer,
		provisioner: opts.Provisioner,
		self:        opts.Self,
		sleep:       opts.Sleep,
		encoding:    opts.Encoding,
		tools:       opts.Tools,
		out:         opts.Output,
		log:         opts.Logger,
	}
	if s.runner == nil {
		s.runner = ExecRunner{}
	}
	if s.describer == nil {
		s.describer = ProcessDescriber{}
	}
	if s.provisioner == nil {
		s.provisioner = &Provisioner{}
	}
	if s.self == nil {
		s.self = func() ProcessID { return ProcessID(os.Getpid()) }
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.encoding == nil {
		s.encoding = consoleEncoding()
	}
	defaults := DefaultTools()
	if s.tools.TaskList == "" {
		s.tools.TaskList = defaults.TaskList
	}
	if s.tools.SC == "" {
		s.tools.SC = defaults.SC
	}
	if s.tools.Net == "" {
		s.tools.Net = defaults.Net
	}
	if s.tools.TaskKill == "" {
		s.tools.TaskKill = defaults.TaskKill
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Settings returns the configuration the sweeper was built with.
func (s *Sweeper) Settings() Settings {
	return s.settings
}

// Before runs the sweep ahead of the work unit using the workspace.
func (s *Sweeper) Before(ctx context.Context, t Target) (Report, error) {
	return s.Run(ctx, PhaseBefore, t)
}

// After runs the sweep once the work unit has completed.
func (s *Sweeper) After(ctx context.Context, t Target) (Report, error) {
	return s.Run(ctx, PhaseAfter, t)
}

// Run executes install, discovery, self exclusion and termination in order.
// The returned error is non-nil only when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, phase Phase, t Target) (rep Report, err error) {
	rep = Report{Phase: phase, WorkDir: t.WorkDir, StartedAt: time.Now()}
	defer func() { rep.FinishedAt = time.Now() }()

	switch {
	case s.settings.Disabled:
		rep.Skipped = SkipDisabled
	case t.Unix:
		rep.Skipped = SkipUnix
	case t.ToolRoot == "":
		rep.Skipped = SkipNoToolRoot
	case t.WorkDir == "":
		rep.Skipped = SkipNoWorkDir
	}
	if rep.Skipped != "" {
		s.log.Debug("sweep skipped", zap.String("phase", string(phase)), zap.String("reason", rep.Skipped))
		return rep, nil
	}

	log := s.log.With(zap.String("phase", string(phase)), zap.String("work_dir", t.WorkDir))
	defer func() {
		if r := recover(); r != nil {
			log.Error("cleanup failed", zap.Any("panic", r), zap.Stack("stack"))
			rep.Errors = append(rep.Errors, fmt.Sprintf("cleanup failed: %v", r))
			err = nil
		}
	}()

	handle, ierr := s.provisioner.EnsureInstalled(t.ToolRoot)
	if ierr != nil {
		log.Error("could not install enumeration tool", zap.String("tool_root", t.ToolRoot), zap.Error(ierr))
		fmt.Fprintf(s.out, "[procsweep] %v\n", ierr)
		rep.Skipped = SkipInstallFailed
		rep.Errors = append(rep.Errors, ierr.Error())
		return rep, nil
	}

	tools := s.tools
	tools.Handle = handle
	d := &Discoverer{
		Runner:     s.runner,
		Encoding:   s.encoding,
		Tools:      tools,
		ExtraNames: CompilePatterns(s.settings.ExtraNames),
		Services:   CompilePatterns(s.settings.ServicePatterns),
		Output:     s.out,
		Logger:     log,
	}
	log.Debug("discovering",
		zap.Strings("extra_names", d.ExtraNames.Sources()),
		zap.Strings("service_patterns", d.Services.Sources()),
	)
	found, err := d.Discover(ctx, t.WorkDir)
	if err != nil {
		return rep, err
	}
	rep.Services = found.Services
	rep.Candidates = found.Candidates.Sorted()
	rep.Errors = append(rep.Errors, flatten(found.Err)...)

	rep.Self = s.self()
	remaining := Exclude(found.Candidates, rep.Self)
	for _, pid := range t.Protect {
		if pid == rep.Self || !remaining.Has(pid) {
			continue
		}
		log.Info("sparing protected process", zap.Int("pid", int(pid)))
		remaining.Remove(pid)
		rep.Spared = append(rep.Spared, pid)
	}

	term := &Terminator{
		Runner:      s.runner,
		Describer:   s.describer,
		Diagnostics: s.settings.Diagnostics,
		GracePeriod: s.settings.GracePeriod,
		Sleep:       s.sleep,
		TaskKill:    tools.TaskKill,
		Output:      s.out,
		Logger:      log,
	}
	killed, err := term.Terminate(ctx, remaining, rep.Self)
	if err != nil {
		return rep, err
	}
	rep.Killed = killed
	return rep, nil
}

func flatten(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
