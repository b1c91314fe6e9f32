//go:build windows

package daemon

import "os"

// Windows cannot deliver a console signal to another process group, so the
// polite request is a plain kill there.
func terminate(proc *os.Process) error {
	return proc.Kill()
}
