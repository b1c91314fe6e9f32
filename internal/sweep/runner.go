package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Runner launches an external utility and blocks until it exits and its
// stdout has been fully written to stdout. A non-nil error means the tool
// could not be launched or communicated with; a tool that ran and failed
// reports its exit code with a nil error.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) (int, error)
}

// ExecRunner runs utilities with os/exec on the local machine.
type ExecRunner struct {
	// Stderr receives the tools' standard error. Nil discards it.
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdout == nil {
		stdout = io.Discard
	}
	cmd.Stdout = stdout
	cmd.Stderr = r.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, fmt.Errorf("run %s: %w", name, err)
}
