package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"procsweep/api/sweepv1"
	"procsweep/internal/config"
	"procsweep/internal/logging"
	"procsweep/internal/registry"
)

// Server is a running agent: the gRPC server, its UNIX listener and the
// single-instance lock.
type Server struct {
	grpc *grpc.Server
	ln   net.Listener
	path string
	lock *flock.Flock
	log  *zap.Logger
	reg  *registry.Registry
	done chan error
}

// Done delivers the result of Serve once the gRPC server stops.
func (s *Server) Done() <-chan error {
	return s.done
}

// Close stops the server gracefully, unlinks the socket and releases the lock
func (s *Server) Close() error {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	var errs *multierror.Error
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierror.Append(errs, err)
		}
	}
	if err := RemovePID(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if s.log != nil {
		s.log.Info("agent stopped")
		_ = s.log.Sync()
	}
	return errs.ErrorOrNil()
}

// StartDaemon loads the config at cfgPath, binds the UNIX socket and serves
// the Sweeper service in the background.
func StartDaemon(cfgPath string) (*Server, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return startWithConfig(cfg, log)
}

func startWithConfig(cfg config.Config, log *zap.Logger) (*Server, error) {
	if err := EnsureRuntimeDir(); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}

	lock := flock.New(LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire agent lock: %w", err)
	}
	if !locked {
		_ = lock.Close()
		return nil, fmt.Errorf("agent already running (lock %s held)", LockPath())
	}
	s := &Server{lock: lock, log: log, done: make(chan error, 1)}

	path := SocketPath()
	// holding the lock means any socket left behind is stale
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			s.Close()
			return nil, err
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.ln, s.path = ln, path
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		s.Close()
		return nil, err
	}

	reg, err := registry.New(HistoryPath(), cfg.HistorySize)
	if err != nil {
		ln.Close()
		s.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	reg.Logger = log.Named("history")
	s.reg = reg

	s.grpc = grpc.NewServer(grpc.ConnectionTimeout(5 * time.Second))
	sweepv1.RegisterSweeperServer(s.grpc, newService(cfg, reg, log.Named("sweep")))

	if err := WritePID(os.Getpid()); err != nil {
		ln.Close()
		s.Close()
		return nil, err
	}
	go s.serve()
	log.Info("agent started",
		zap.Int("pid", os.Getpid()),
		zap.String("socket", path),
		zap.String("history", HistoryPath()),
		zap.Int("history_size", reg.Capacity()),
	)
	return s, nil
}

func (s *Server) serve() {
	err := s.grpc.Serve(s.ln)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		s.log.Error("agent serve failed", zap.Error(err))
	}
	s.done <- err
	close(s.done)
}

// StopRunningDaemon asks the currently running agent to exit, if any. With
// force the process is killed when it ignores the request.
func StopRunningDaemon(force bool) error {
	pid, err := RunningPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if IsRunning() {
				return fmt.Errorf("agent is running but PID file %q is missing; stop it manually", PIDPath())
			}
			return nil
		}
		return fmt.Errorf("unable to read agent PID: %w", err)
	}
	if pid == os.Getpid() {
		return errors.New("refusing to stop current process")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := ignoreDone(terminate(proc)); err != nil {
		return err
	}
	if waitForShutdown(3 * time.Second) {
		return nil
	}
	if !force {
		return fmt.Errorf("agent process %d did not exit after terminate request", pid)
	}
	if err := ignoreDone(proc.Kill()); err != nil {
		return err
	}
	if waitForShutdown(2 * time.Second) {
		return nil
	}
	return fmt.Errorf("agent process %d did not exit after kill", pid)
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		_ = RemovePID()
		return nil
	}
	return err
}

func waitForShutdown(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !IsRunning() {
			_ = RemovePID()
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
