package sweep

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// DefaultGracePeriod is the pause between discovery and taskkill that lets
// processes which are already exiting release their handles.
const DefaultGracePeriod = 5 * time.Second

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Terminator force-kills a candidate set in one batch.
type Terminator struct {
	Runner      Runner
	Describer   Describer
	Diagnostics bool
	GracePeriod time.Duration
	Sleep       SleepFunc
	TaskKill    string
	Output      io.Writer
	Logger      *zap.Logger
}

// Exclude returns candidates without self.
func Exclude(candidates CandidateSet, self ProcessID) CandidateSet {
	out := candidates.Clone()
	out.Remove(self)
	return out
}

// Terminate kills every candidate. It returns the pids handed to taskkill;
// kill failures are logged, and only cancellation during the grace period is
// returned as an error.
func (t *Terminator) Terminate(ctx context.Context, candidates CandidateSet, self ProcessID) ([]ProcessID, error) {
	log := t.logger()
	if candidates.Len() == 0 {
		log.Info("found no processes to kill")
		t.printf("[procsweep] found no processes to kill\n")
		return nil, nil
	}

	pids := candidates.Sorted()
	log.Info("pids to kill", zap.Stringer("pids", candidates), zap.Int("self", int(self)))
	t.printf("[procsweep] pids to kill: %s (I'm %d)\n", candidates, self)

	if t.Diagnostics && t.Describer != nil {
		for _, pid := range pids {
			t.describe(ctx, pid)
		}
	}

	grace := t.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	log.Info("waiting before kill", zap.Duration("grace_period", grace))
	t.printf("[procsweep] waiting %s\n", grace)
	sleep := t.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if err := sleep(ctx, grace); err != nil {
		return nil, err
	}

	args := KillArgs(pids)
	code, err := t.Runner.Run(ctx, t.taskKill(), args, t.out())
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return pids, ctx.Err()
		}
		log.Error("taskkill failed to run", zap.Error(err))
	case code != 0:
		log.Warn("taskkill reported failures", zap.Int("exit_code", code), zap.Stringer("pids", candidates))
	default:
		log.Info("processes killed", zap.Stringer("pids", candidates))
	}
	return pids, nil
}

// KillArgs builds the taskkill argument list: force, tree, then one /PID
// pair per process.
func KillArgs(pids []ProcessID) []string {
	args := make([]string, 0, 2+2*len(pids))
	args = append(args, "/F", "/T")
	for _, pid := range pids {
		args = append(args, "/PID", pid.String())
	}
	return args
}

func (t *Terminator) describe(ctx context.Context, pid ProcessID) {
	info, err := t.Describer.Describe(ctx, pid)
	if err != nil {
		t.logger().Warn("could not describe process", zap.Int("pid", int(pid)), zap.Error(err))
		return
	}
	t.logger().Info("candidate",
		zap.Int("pid", int(info.PID)),
		zap.Int("ppid", int(info.ParentPID)),
		zap.String("name", info.Name),
		zap.String("cmdline", info.CommandLine),
	)
	t.printf("%d\t%d\t%s\n", info.PID, info.ParentPID, info.CommandLine)
}

func (t *Terminator) taskKill() string {
	if t.TaskKill == "" {
		return DefaultTools().TaskKill
	}
	return t.TaskKill
}

func (t *Terminator) printf(format string, args ...any) {
	fmt.Fprintf(t.out(), format, args...)
}

func (t *Terminator) out() io.Writer {
	if t.Output == nil {
		return io.Discard
	}
	return t.Output
}

func (t *Terminator) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
