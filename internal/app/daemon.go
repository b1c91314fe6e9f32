package app

import "procsweep/internal/daemon"

// DaemonStatus represents current information about the agent process.
type DaemonStatus struct {
	Running bool
	PID     int
	Socket  string
}

// Status returns whether the agent is running and its PID if known.
func (a *App) Status() (DaemonStatus, error) {
	st := DaemonStatus{Socket: daemon.SocketPath()}
	if !daemonIsRunning() {
		return st, nil
	}
	st.Running = true
	pid, err := daemon.RunningPID()
	if err != nil {
		return st, err
	}
	st.PID = pid
	return st, nil
}

// StopDaemon attempts to stop the running agent.
func (a *App) StopDaemon(force bool) error {
	return daemon.StopRunningDaemon(force)
}

// DaemonHandle holds a running agent instance.
type DaemonHandle struct {
	srv *daemon.Server
}

// Close stops the running agent instance.
func (h *DaemonHandle) Close() error {
	if h == nil || h.srv == nil {
		return nil
	}
	return h.srv.Close()
}

// Done reports when the agent stops serving.
func (h *DaemonHandle) Done() <-chan error {
	return h.srv.Done()
}

// StartDaemon starts the agent and returns a handle for closing it.
func (a *App) StartDaemon() (*DaemonHandle, error) {
	srv, err := daemon.StartDaemon(a.cfgPath)
	if err != nil {
		return nil, err
	}
	return &DaemonHandle{srv: srv}, nil
}
