package daemon

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"procsweep/api/sweepv1"
	"procsweep/internal/config"
	"procsweep/internal/registry"
	"procsweep/internal/sweep"
)

// scriptedRunner prints canned output for handle.exe and records taskkill.
type scriptedRunner struct {
	mu     sync.Mutex
	handle string
	kills  [][]string
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case strings.HasSuffix(name, "handle.exe"):
		_, _ = io.WriteString(stdout, r.handle)
	case name == "taskkill.exe":
		r.kills = append(r.kills, append([]string(nil), args...))
	}
	return 0, nil
}

type agentFixture struct {
	svc    *service
	runner *scriptedRunner
	seen   []sweep.Overrides
}

func newAgentFixture(t *testing.T, log *zap.Logger) *agentFixture {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	reg, err := registry.New("", 10)
	require.NoError(t, err)

	f := &agentFixture{runner: &scriptedRunner{handle: "a.exe pid: 100 type: File\nagent.exe pid: 7 type: File\n"}}
	cfg := config.Config{ToolRoot: t.TempDir(), GracePeriod: time.Second, AdditionalProcesses: []string{"msbuild.exe"}}
	f.svc = newService(cfg, reg, log)
	f.svc.build = func(cfg config.Config, ov sweep.Overrides, log *zap.Logger) (*sweep.Sweeper, error) {
		f.seen = append(f.seen, ov)
		return sweep.New(sweep.Options{
			Settings:    sweep.SettingsFromConfig(cfg, ov),
			Runner:      f.runner,
			Provisioner: &sweep.Provisioner{Bundle: fstest.MapFS{"handle.exe": {Data: []byte("MZ")}}},
			Self:        func() sweep.ProcessID { return 7 },
			Sleep:       func(context.Context, time.Duration) error { return nil },
			Logger:      log,
		}), nil
	}
	f.svc.target = func(cfg config.Config, workDir, toolRoot string) sweep.Target {
		tgt := sweep.LocalTarget(cfg, workDir, toolRoot)
		tgt.Unix = false
		return tgt
	}
	return f
}

func TestServiceSweepRecordsRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newAgentFixture(t, zap.New(core))

	out, err := f.svc.Sweep(context.Background(), sweepv1.SweepRequest{Phase: "after", WorkDir: `C:\ws`, Diagnostics: false}.Proto())
	require.NoError(t, err)

	rep := sweepv1.ReportFromProto(out)
	assert.Equal(t, uint64(1), rep.RunID)
	assert.Equal(t, "after", rep.Phase)
	assert.Equal(t, []int{7, 100}, rep.Candidates)
	assert.Equal(t, 7, rep.Self)
	assert.Equal(t, []int{100}, rep.Killed)
	require.Len(t, f.runner.kills, 1)
	assert.Equal(t, []string{"/F", "/T", "/PID", "100"}, f.runner.kills[0])

	assert.Equal(t, 1, f.svc.reg.Len())
	assert.Equal(t, 1, logs.FilterMessage("sweep recorded").Len())
	require.Len(t, f.seen, 1)
	assert.Empty(t, f.seen[0].ExtraNames)
}

func TestServiceSweepSparesCaller(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.runner.handle = "a.exe pid: 100 type: File\nprocsweep.exe pid: 300 type: File\nagent.exe pid: 7 type: File\n"

	out, err := f.svc.Sweep(context.Background(), sweepv1.SweepRequest{Phase: "before", WorkDir: `C:\ws`, CallerPID: 300}.Proto())
	require.NoError(t, err)

	rep := sweepv1.ReportFromProto(out)
	assert.Equal(t, []int{7, 100, 300}, rep.Candidates)
	assert.Equal(t, []int{300}, rep.Spared)
	assert.Equal(t, []int{100}, rep.Killed)
	require.Len(t, f.runner.kills, 1)
	assert.Equal(t, []string{"/F", "/T", "/PID", "100"}, f.runner.kills[0])

	stored := sweepv1.HistoryFromProto(mustHistory(t, f, sweepv1.HistoryRequest{RunID: rep.RunID}))
	require.Len(t, stored, 1)
	assert.Equal(t, []int{300}, stored[0].Spared)
}

func TestServiceHistoryByRunID(t *testing.T) {
	f := newAgentFixture(t, nil)
	for _, phase := range []string{"before", "after"} {
		_, err := f.svc.Sweep(context.Background(), sweepv1.SweepRequest{Phase: phase, WorkDir: `C:\ws`}.Proto())
		require.NoError(t, err)
	}

	runs := sweepv1.HistoryFromProto(mustHistory(t, f, sweepv1.HistoryRequest{RunID: 1, Phase: "after"}))
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(1), runs[0].RunID)
	assert.Equal(t, "before", runs[0].Phase)

	_, err := f.svc.History(context.Background(), sweepv1.HistoryRequest{RunID: 42}.Proto())
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func mustHistory(t *testing.T, f *agentFixture, req sweepv1.HistoryRequest) *structpb.Struct {
	t.Helper()
	out, err := f.svc.History(context.Background(), req.Proto())
	require.NoError(t, err)
	return out
}

func TestServiceSweepRejectsUnknownPhase(t *testing.T) {
	f := newAgentFixture(t, nil)

	_, err := f.svc.Sweep(context.Background(), sweepv1.SweepRequest{Phase: "during", WorkDir: `C:\ws`}.Proto())

	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 0, f.svc.reg.Len())
}

func TestServiceSweepCancelled(t *testing.T) {
	f := newAgentFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Sweep(ctx, sweepv1.SweepRequest{Phase: "before", WorkDir: `C:\ws`}.Proto())

	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Equal(t, 0, f.svc.reg.Len())
}

func TestServiceHistoryFilters(t *testing.T) {
	f := newAgentFixture(t, nil)
	for _, phase := range []string{"before", "after", "before"} {
		_, err := f.svc.Sweep(context.Background(), sweepv1.SweepRequest{Phase: phase, WorkDir: `C:\ws`}.Proto())
		require.NoError(t, err)
	}

	out, err := f.svc.History(context.Background(), sweepv1.HistoryRequest{Phase: "before"}.Proto())
	require.NoError(t, err)
	runs := sweepv1.HistoryFromProto(out)
	require.Len(t, runs, 2)
	assert.Equal(t, uint64(3), runs[0].RunID)
	assert.Equal(t, uint64(1), runs[1].RunID)

	out, err = f.svc.History(context.Background(), sweepv1.HistoryRequest{Limit: 1}.Proto())
	require.NoError(t, err)
	assert.Len(t, sweepv1.HistoryFromProto(out), 1)

	_, err = f.svc.History(context.Background(), sweepv1.HistoryRequest{Phase: "during"}.Proto())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServiceOverGRPC(t *testing.T) {
	f := newAgentFixture(t, nil)
	ln := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	sweepv1.RegisterSweeperServer(srv, f.svc)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := sweepv1.NewSweeperClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "pong", pong.GetValue())

	out, err := client.Sweep(ctx, sweepv1.SweepRequest{Phase: "before", WorkDir: `C:\ws`, ExtraNames: []string{"node"}}.Proto())
	require.NoError(t, err)
	assert.Equal(t, []int{100}, sweepv1.ReportFromProto(out).Killed)
	require.Len(t, f.seen, 1)
	assert.Equal(t, []string{"node"}, f.seen[0].ExtraNames)

	hist, err := client.History(ctx, sweepv1.HistoryRequest{}.Proto())
	require.NoError(t, err)
	assert.Len(t, sweepv1.HistoryFromProto(hist), 1)
}
