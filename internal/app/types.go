package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"procsweep/api/sweepv1"
	"procsweep/internal/sweep"
)

// Report is the outcome of one sweep, local or recorded by the agent.
type Report = sweepv1.Report

// SweepParams selects where and how a sweep runs. Empty lists fall back to
// the configuration.
type SweepParams struct {
	Phase           string
	WorkDir         string
	ToolRoot        string
	ExtraNames      []string
	ServicePatterns []string
	Diagnostics     bool
	// ViaAgent sends the sweep to the resident agent instead of running it
	// in this process.
	ViaAgent bool
	// Timeout bounds the agent round trip. Unused for local sweeps.
	Timeout time.Duration
}

func (p SweepParams) validate() (sweep.Phase, error) {
	phase, err := sweep.ParsePhase(strings.TrimSpace(p.Phase))
	if err != nil {
		return "", err
	}
	for _, name := range p.ExtraNames {
		if strings.TrimSpace(name) == "" {
			return "", errors.New("process names must not be empty")
		}
	}
	for _, pattern := range p.ServicePatterns {
		if strings.TrimSpace(pattern) == "" {
			return "", errors.New("service patterns must not be empty")
		}
	}
	return phase, nil
}

func (p SweepParams) request(phase sweep.Phase) sweepv1.SweepRequest {
	return sweepv1.SweepRequest{
		Phase:           string(phase),
		WorkDir:         p.WorkDir,
		ToolRoot:        p.ToolRoot,
		ExtraNames:      append([]string(nil), p.ExtraNames...),
		ServicePatterns: append([]string(nil), p.ServicePatterns...),
		Diagnostics:     p.Diagnostics,
		CallerPID:       os.Getpid(),
	}
}

// HistoryParams filters the agent's run history. A non-zero RunID fetches
// that run alone.
type HistoryParams struct {
	RunID   uint64
	Limit   int
	Phase   string
	WorkDir string
	Timeout time.Duration
}

func (p HistoryParams) request() (sweepv1.HistoryRequest, error) {
	if p.Limit < 0 {
		return sweepv1.HistoryRequest{}, fmt.Errorf("invalid limit: %d", p.Limit)
	}
	phase := strings.TrimSpace(p.Phase)
	if phase != "" {
		if _, err := sweep.ParsePhase(phase); err != nil {
			return sweepv1.HistoryRequest{}, err
		}
	}
	return sweepv1.HistoryRequest{RunID: p.RunID, Limit: p.Limit, Phase: phase, WorkDir: strings.TrimSpace(p.WorkDir)}, nil
}
