package daemon

import (
	"procsweep/api/sweepv1"
	"procsweep/internal/registry"
	"procsweep/internal/sweep"
)

// WireReport converts a local sweep report into its wire form. Locally run
// sweeps have no history id.
func WireReport(rep sweep.Report) sweepv1.Report {
	return sweepv1.Report{
		Phase:      string(rep.Phase),
		WorkDir:    rep.WorkDir,
		Skipped:    rep.Skipped,
		Services:   append([]string(nil), rep.Services...),
		Candidates: pidInts(rep.Candidates),
		Self:       int(rep.Self),
		Spared:     pidInts(rep.Spared),
		Killed:     pidInts(rep.Killed),
		Errors:     append([]string(nil), rep.Errors...),
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
	}
}

func runFromReport(rep sweep.Report) registry.Run {
	w := WireReport(rep)
	return registry.Run{
		Phase:      w.Phase,
		WorkDir:    w.WorkDir,
		Skipped:    w.Skipped,
		Services:   w.Services,
		Candidates: w.Candidates,
		Self:       w.Self,
		Spared:     w.Spared,
		Killed:     w.Killed,
		Errors:     w.Errors,
		StartedAt:  w.StartedAt.UTC(),
		FinishedAt: w.FinishedAt.UTC(),
	}
}

func reportFromRun(run registry.Run) sweepv1.Report {
	return sweepv1.Report{
		RunID:      uint64(run.ID),
		Phase:      run.Phase,
		WorkDir:    run.WorkDir,
		Skipped:    run.Skipped,
		Services:   run.Services,
		Candidates: run.Candidates,
		Self:       run.Self,
		Spared:     run.Spared,
		Killed:     run.Killed,
		Errors:     run.Errors,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func pidInts(pids []sweep.ProcessID) []int {
	if len(pids) == 0 {
		return nil
	}
	out := make([]int, 0, len(pids))
	for _, pid := range pids {
		out = append(out, int(pid))
	}
	return out
}
