package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"procsweep/api/sweepv1"
	"procsweep/internal/daemon"
)

var (
	daemonIsRunning  = daemon.IsRunning
	dialDaemonClient = dialAgent
)

func dialAgent(ctx context.Context) (sweepv1.SweeperClient, io.Closer, error) {
	client, conn, err := daemon.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, conn, nil
}

func resetDaemonDeps() {
	daemonIsRunning = daemon.IsRunning
	dialDaemonClient = dialAgent
}

func (a *App) withClient(ctx context.Context, timeout time.Duration, fn func(context.Context, sweepv1.SweeperClient) error) error {
	if timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if !daemonIsRunning() {
		return errors.New("agent is not running")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, conn, err := dialDaemonClient(ctx)
	if err != nil {
		return fmt.Errorf("connect to agent: %w", err)
	}
	if conn != nil {
		defer conn.Close()
	}

	return fn(ctx, client)
}
