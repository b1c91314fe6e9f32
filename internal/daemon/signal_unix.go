//go:build !windows

package daemon

import (
	"os"
	"syscall"
)

func terminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
