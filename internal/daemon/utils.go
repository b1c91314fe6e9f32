package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
)

// SocketBaseName is the UNIX socket filename
const SocketBaseName = "procsweep.sock"

const (
	pidFileName     = "procsweep.pid"
	lockFileName    = "procsweep.lock"
	historyFileName = "history.json"
)

// SocketPath returns the full path to the UNIX socket
// Order of precedence (first wins):
// 1) PROCSWEEP_SOCKET (absolute path to socket)
// 2) PROCSWEEP_RUNTIME_DIR
// 3) if runtime=linux: $XDG_RUNTIME_DIR or /run/user/<UID>
// 4) windows: %LOCALAPPDATA%\procsweep
// 5) else (darwin, *bsd, etc): /tmp
func SocketPath() string {
	if explicit := os.Getenv("PROCSWEEP_SOCKET"); explicit != "" {
		return explicit
	}

	// Allow override of parent dir
	if rd := os.Getenv("PROCSWEEP_RUNTIME_DIR"); rd != "" {
		return filepath.Join(rd, SocketBaseName)
	}

	uid := currentUID()

	switch runtime.GOOS {
	case "linux":
		if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
			return filepath.Join(v, SocketBaseName)
		}
		// Linux per-user runtime dir
		return filepath.Join("/run/user", uid, SocketBaseName)
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "procsweep", SocketBaseName)
		}
		return filepath.Join(os.TempDir(), "procsweep", SocketBaseName)
	}

	// macOS / BSD / other unix: keep it short to avoid sun_path length limit
	return filepath.Join("/tmp", "procsweep-"+uid+".sock")
}

// EnsureRuntimeDir creates the directory holding the socket if it doesn't exist
func EnsureRuntimeDir() error {
	return os.MkdirAll(filepath.Dir(SocketPath()), 0o700)
}

// PIDPath returns the full path to the PID file
func PIDPath() string {
	return filepath.Join(filepath.Dir(SocketPath()), pidFileName)
}

// LockPath returns the single-instance lock file held by a running agent.
func LockPath() string {
	return filepath.Join(filepath.Dir(SocketPath()), lockFileName)
}

// HistoryPath returns where the agent snapshots its run history.
func HistoryPath() string {
	if v := os.Getenv("PROCSWEEP_HISTORY"); v != "" {
		return v
	}
	return filepath.Join(filepath.Dir(SocketPath()), historyFileName)
}

// WritePID stores the provided pid into the pid file
func WritePID(pid int) error {
	if err := EnsureRuntimeDir(); err != nil {
		return err
	}
	return os.WriteFile(PIDPath(), []byte(fmt.Sprintf("%d\n", pid)), 0o600)
}

// RemovePID removes the pid file if it exists
func RemovePID() error {
	if err := os.Remove(PIDPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// RunningPID returns the pid stored in the pid file if any
func RunningPID() (int, error) {
	data, err := os.ReadFile(PIDPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// IsRunning tries to ping the agent over gRPC and returns true if it responds.
func IsRunning() bool {
	if _, err := os.Stat(SocketPath()); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	client, conn, err := Dial(ctx)
	if err != nil {
		return false
	}
	defer conn.Close()

	if _, err := client.Ping(ctx, &emptypb.Empty{}); err != nil {
		return false
	}
	return true
}

func currentUID() string {
	u, err := user.Current()
	if err == nil && u != nil && u.Uid != "" {
		return u.Uid
	}
	return "0"
}
