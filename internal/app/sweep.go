package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"procsweep/api/sweepv1"
	"procsweep/internal/daemon"
	"procsweep/internal/sweep"
)

// Sweep runs one cleanup round for params.WorkDir, either in this process
// or through the agent. Every outcome other than interruption is reported
// through the Report, not the error.
func (a *App) Sweep(ctx context.Context, params SweepParams) (Report, error) {
	phase, err := params.validate()
	if err != nil {
		return Report{}, err
	}
	if params.ViaAgent {
		return a.sweepViaAgent(ctx, phase, params)
	}
	return a.sweepLocal(ctx, phase, params)
}

func (a *App) sweepLocal(ctx context.Context, phase sweep.Phase, params SweepParams) (Report, error) {
	cfg, log, err := a.loadConfig()
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = log.Sync() }()

	sw, err := sweep.FromConfig(cfg, sweep.Overrides{
		ExtraNames:      params.ExtraNames,
		ServicePatterns: params.ServicePatterns,
		Diagnostics:     params.Diagnostics,
	}, sweep.Options{Output: a.out, Sleep: a.sleep, Logger: log})
	if err != nil {
		return Report{}, err
	}

	rep, err := sw.Run(ctx, phase, sweep.LocalTarget(cfg, params.WorkDir, params.ToolRoot))
	if err != nil {
		return daemon.WireReport(rep), err
	}
	log.Debug("sweep finished",
		zap.String("phase", string(rep.Phase)),
		zap.String("skipped", rep.Skipped),
		zap.Int("killed", len(rep.Killed)),
	)
	return daemon.WireReport(rep), nil
}

func (a *App) sweepViaAgent(ctx context.Context, phase sweep.Phase, params SweepParams) (Report, error) {
	var rep Report
	err := a.withClient(ctx, params.Timeout, func(ctx context.Context, client sweepv1.SweeperClient) error {
		resp, err := client.Sweep(ctx, params.request(phase).Proto())
		if err != nil {
			return fmt.Errorf("agent sweep RPC failed: %w", err)
		}
		rep = sweepv1.ReportFromProto(resp)
		return nil
	})
	return rep, err
}
