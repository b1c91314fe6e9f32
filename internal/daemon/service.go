package daemon

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"procsweep/api/sweepv1"
	"procsweep/internal/config"
	"procsweep/internal/registry"
	"procsweep/internal/sweep"
)

// sweeperFactory builds the sweeper for one request.
type sweeperFactory func(cfg config.Config, ov sweep.Overrides, log *zap.Logger) (*sweep.Sweeper, error)

func localSweeper(cfg config.Config, ov sweep.Overrides, log *zap.Logger) (*sweep.Sweeper, error) {
	out := &zapio.Writer{Log: log.Named("tool"), Level: zap.DebugLevel}
	return sweep.FromConfig(cfg, ov, sweep.Options{Output: out, Logger: log})
}

// service implements the Sweeper gRPC service backed by the run history.
type service struct {
	sweepv1.UnimplementedSweeperServer

	cfg    config.Config
	reg    *registry.Registry
	log    *zap.Logger
	build  sweeperFactory
	target func(cfg config.Config, workDir, toolRoot string) sweep.Target

	// sweeps on one machine never overlap
	mu sync.Mutex
}

func newService(cfg config.Config, reg *registry.Registry, log *zap.Logger) *service {
	return &service{cfg: cfg, reg: reg, log: log, build: localSweeper, target: sweep.LocalTarget}
}

func (s *service) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("pong"), nil
}

func (s *service) Sweep(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := sweepv1.SweepRequestFromProto(in)
	phase, err := sweep.ParsePhase(strings.TrimSpace(req.Phase))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sw, err := s.build(s.cfg, sweep.Overrides{
		ExtraNames:      req.ExtraNames,
		ServicePatterns: req.ServicePatterns,
		Diagnostics:     req.Diagnostics,
	}, s.log)
	if err != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "build sweeper: %v", err)
	}

	settings := sw.Settings()
	s.log.Debug("sweep requested",
		zap.String("phase", string(phase)),
		zap.String("work_dir", req.WorkDir),
		zap.Int("caller_pid", req.CallerPID),
		zap.Strings("extra_names", settings.ExtraNames),
		zap.Strings("service_patterns", settings.ServicePatterns),
		zap.Bool("diagnostics", settings.Diagnostics),
	)

	target := s.target(s.cfg, req.WorkDir, req.ToolRoot)
	if req.CallerPID > 0 {
		target.Protect = append(target.Protect, sweep.ProcessID(req.CallerPID))
	}
	rep, err := sw.Run(ctx, phase, target)
	if err != nil {
		s.log.Warn("sweep interrupted", zap.String("phase", string(phase)), zap.String("work_dir", req.WorkDir), zap.Error(err))
		return nil, status.FromContextError(err).Err()
	}

	out := reportFromRun(s.reg.Record(runFromReport(rep)))
	s.log.Info("sweep recorded",
		zap.Uint64("run_id", out.RunID),
		zap.String("phase", out.Phase),
		zap.String("work_dir", out.WorkDir),
		zap.Ints("killed", out.Killed),
		zap.String("outcome", out.Outcome()),
	)
	return out.Proto(), nil
}

func (s *service) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := sweepv1.HistoryRequestFromProto(in)
	if req.RunID > 0 {
		run, ok := s.reg.Get(registry.RunID(req.RunID))
		if !ok {
			return nil, status.Errorf(codes.NotFound, "run %d not found", req.RunID)
		}
		return sweepv1.HistoryProto([]sweepv1.Report{reportFromRun(run)}), nil
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	filter := registry.ListFilter{WorkDir: req.WorkDir, Limit: req.Limit}
	if phase := strings.TrimSpace(req.Phase); phase != "" {
		parsed, err := sweep.ParsePhase(phase)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		filter.Phases = []string{string(parsed)}
	}

	runs := s.reg.List(filter)
	out := make([]sweepv1.Report, 0, len(runs))
	for _, run := range runs {
		out = append(out, reportFromRun(run))
	}
	return sweepv1.HistoryProto(out), nil
}
