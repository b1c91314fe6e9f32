package sweep

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Tools names the external utilities the sweep shells out to.
type Tools struct {
	Handle   string
	TaskList string
	SC       string
	Net      string
	TaskKill string
}

// DefaultTools returns the stock Windows utility names. Handle is filled in
// by the provisioner once handle.exe is installed.
func DefaultTools() Tools {
	return Tools{
		TaskList: "tasklist",
		SC:       "sc",
		Net:      "net",
		TaskKill: "taskkill.exe",
	}
}

// Discovery is the outcome of one discovery pass.
type Discovery struct {
	Candidates CandidateSet
	// Services that matched the configured patterns and were asked to stop.
	Services []string
	// Err aggregates the non-fatal failures of individual sources.
	Err error
}

// Discoverer assembles the set of processes holding the work directory.
type Discoverer struct {
	Runner     Runner
	Encoding   encoding.Encoding
	Tools      Tools
	ExtraNames PatternSet
	Services   PatternSet
	Output     io.Writer
	Logger     *zap.Logger
}

// Discover stops matching services, then collects lock holders of workDir
// and processes selected by name. A source that cannot be run contributes
// nothing; the only error returned is the context's.
func (d *Discoverer) Discover(ctx context.Context, workDir string) (Discovery, error) {
	log := d.logger()
	res := Discovery{Candidates: NewCandidateSet()}
	var errs *multierror.Error

	if !d.Services.Empty() {
		stopped, err := d.stopServices(ctx)
		res.Services = stopped
		if ctx.Err() != nil {
			return Discovery{}, ctx.Err()
		}
		errs = multierror.Append(errs, err)
	}

	holders, err := d.collect(ctx, d.Tools.Handle, []string{"-accepteula", workDir}, HandleParser{}, true)
	if ctx.Err() != nil {
		return Discovery{}, ctx.Err()
	}
	if err != nil {
		log.Error("lock enumeration failed", zap.String("tool", d.Tools.Handle), zap.String("work_dir", workDir), zap.Error(err))
		errs = multierror.Append(errs, fmt.Errorf("lock enumeration: %w", err))
	} else {
		log.Debug("lock holders found", zap.Stringer("pids", holders))
		res.Candidates.Union(holders)
	}

	if !d.ExtraNames.Empty() {
		named, err := d.collect(ctx, d.Tools.TaskList, nil, TaskListParser{Names: d.ExtraNames}, true)
		if ctx.Err() != nil {
			return Discovery{}, ctx.Err()
		}
		if err != nil {
			log.Error("process list failed", zap.String("tool", d.Tools.TaskList), zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("process list: %w", err))
		} else {
			log.Debug("named processes found", zap.Stringer("pids", named))
			res.Candidates.Union(named)
		}
	}

	res.Err = errs.ErrorOrNil()
	return res, nil
}

// collect runs one enumeration tool and returns the pids its parser accepted.
func (d *Discoverer) collect(ctx context.Context, tool string, args []string, parser LineParser, echo bool) (CandidateSet, error) {
	found := NewCandidateSet()
	w := NewLineWriter(d.Encoding, parser, func(value, line string) {
		id, ok := ParseProcessID(value)
		if !ok {
			return
		}
		found.Add(id)
		if echo {
			fmt.Fprintln(d.out(), line)
		}
	})
	code, err := d.Runner.Run(ctx, tool, args, w)
	_ = w.Close()
	if err != nil {
		return nil, err
	}
	if code != 0 {
		d.logger().Debug("enumeration tool exited non-zero", zap.String("tool", tool), zap.Int("exit_code", code))
	}
	return found, nil
}

func (d *Discoverer) stopServices(ctx context.Context) ([]string, error) {
	log := d.logger()
	names := make(map[string]struct{})
	w := NewLineWriter(d.Encoding, ServiceParser{Patterns: d.Services}, func(value, _ string) {
		names[value] = struct{}{}
	})
	_, err := d.Runner.Run(ctx, d.Tools.SC, []string{"queryex"}, w)
	_ = w.Close()
	if err != nil {
		log.Error("service query failed", zap.String("tool", d.Tools.SC), zap.Error(err))
		return nil, fmt.Errorf("service query: %w", err)
	}

	services := make([]string, 0, len(names))
	for name := range names {
		services = append(services, name)
	}
	sort.Strings(services)

	var errs *multierror.Error
	for _, svc := range services {
		if ctx.Err() != nil {
			return services, ctx.Err()
		}
		// clear failure actions so the service manager does not restart it
		code, err := d.Runner.Run(ctx, d.Tools.SC, []string{"failure", svc, "actions=", "", "reset=", "0"}, io.Discard)
		if err != nil || code != 0 {
			log.Warn("could not reset service failure actions", zap.String("service", svc), zap.Int("exit_code", code), zap.Error(err))
		}
		code, err = d.Runner.Run(ctx, d.Tools.Net, []string{"stop", svc}, d.out())
		switch {
		case err != nil:
			log.Warn("service stop failed", zap.String("service", svc), zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("stop service %s: %w", svc, err))
		case code != 0:
			log.Warn("service stop failed", zap.String("service", svc), zap.Int("exit_code", code))
			errs = multierror.Append(errs, fmt.Errorf("stop service %s: exit code %d", svc, code))
		default:
			log.Info("service stopped", zap.String("service", svc))
		}
	}
	return services, errs.ErrorOrNil()
}

func (d *Discoverer) out() io.Writer {
	if d.Output == nil {
		return io.Discard
	}
	return d.Output
}

func (d *Discoverer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
