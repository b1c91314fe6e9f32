package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"procsweep/internal/config"
)

// shortRuntimeDir keeps the socket path under the sun_path limit.
func shortRuntimeDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "psw")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv("PROCSWEEP_SOCKET", "")
	t.Setenv("PROCSWEEP_HISTORY", "")
	t.Setenv("PROCSWEEP_RUNTIME_DIR", dir)
	return dir
}

func TestRuntimePathsFollowEnv(t *testing.T) {
	dir := shortRuntimeDir(t)

	assert.Equal(t, filepath.Join(dir, SocketBaseName), SocketPath())
	assert.Equal(t, filepath.Join(dir, "procsweep.pid"), PIDPath())
	assert.Equal(t, filepath.Join(dir, "procsweep.lock"), LockPath())
	assert.Equal(t, filepath.Join(dir, "history.json"), HistoryPath())

	explicit := filepath.Join(dir, "custom.sock")
	t.Setenv("PROCSWEEP_SOCKET", explicit)
	assert.Equal(t, explicit, SocketPath())
}

func TestPIDFileRoundTrip(t *testing.T) {
	shortRuntimeDir(t)

	require.NoError(t, WritePID(4242))
	pid, err := RunningPID()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, RemovePID())
	require.NoError(t, RemovePID())
	_, err = RunningPID()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAgentLifecycle(t *testing.T) {
	shortRuntimeDir(t)
	cfg := config.Config{HistorySize: 5, GracePeriod: time.Second}

	srv, err := startWithConfig(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, IsRunning())
	pid, err := RunningPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	_, err = startWithConfig(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "already running")

	require.NoError(t, srv.Close())
	assert.False(t, IsRunning())
	_, err = os.Stat(SocketPath())
	assert.True(t, os.IsNotExist(err))

	again, err := startWithConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
