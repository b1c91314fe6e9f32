package sweep

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is the diagnostic metadata reported for a candidate before it
// is killed.
type ProcessInfo struct {
	PID         ProcessID
	ParentPID   ProcessID
	Name        string
	CommandLine string
}

// Describer looks up diagnostic metadata for a live process.
type Describer interface {
	Describe(ctx context.Context, pid ProcessID) (ProcessInfo, error)
}

// ProcessDescriber reads process metadata from the local process table.
type ProcessDescriber struct{}

func (ProcessDescriber) Describe(ctx context.Context, pid ProcessID) (ProcessInfo, error) {
	info := ProcessInfo{PID: pid}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return info, fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		info.ParentPID = ProcessID(ppid)
	}
	if name, err := p.NameWithContext(ctx); err == nil {
		info.Name = name
	}
	cmdline, err := p.CmdlineWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("command line of pid %d: %w", pid, err)
	}
	info.CommandLine = cmdline
	return info, nil
}
