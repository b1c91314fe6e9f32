package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"procsweep/internal/app"
	"procsweep/internal/sweep"
)

func init() {
	rootCmd.AddCommand(newSweepCmd(sweep.PhaseBefore, "Sweep a work directory before the job starts"))
	rootCmd.AddCommand(newSweepCmd(sweep.PhaseAfter, "Sweep a work directory after the job finished"))
}

type sweepFlags struct {
	workDir     string
	toolRoot    string
	extra       []string
	services    []string
	diagnostics bool
	viaAgent    bool
	timeout     int
}

func newSweepCmd(phase sweep.Phase, short string) *cobra.Command {
	var f sweepFlags
	cmd := &cobra.Command{
		Use:   string(phase),
		Short: short,
		Long: `Stops matching services, collects every process holding a handle inside
--workdir plus processes matched by --extra, waits the grace period and
force-kills them. Problems along the way are reported, not fatal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := controller().Sweep(cmd.Context(), app.SweepParams{
				Phase:           string(phase),
				WorkDir:         f.workDir,
				ToolRoot:        f.toolRoot,
				ExtraNames:      f.extra,
				ServicePatterns: f.services,
				Diagnostics:     f.diagnostics,
				ViaAgent:        f.viaAgent,
				Timeout:         time.Duration(f.timeout) * time.Second,
			})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.workDir, "workdir", "w", "", "Work directory to release")
	cmd.Flags().StringVar(&f.toolRoot, "tool-root", "", "Directory that receives handle.exe (defaults to tool_root)")
	cmd.Flags().StringSliceVar(&f.extra, "extra", nil, "Process names or regexes to kill as well (replaces additional_processes)")
	cmd.Flags().StringSliceVar(&f.services, "services", nil, "Service name regexes to stop first (replaces windows_services)")
	cmd.Flags().BoolVar(&f.diagnostics, "diagnostics", false, "Describe every process before killing it")
	cmd.Flags().BoolVar(&f.viaAgent, "agent", false, "Run the sweep inside the resident agent")
	cmd.Flags().IntVarP(&f.timeout, "timeout", "t", 600, "Timeout in seconds for the agent round trip")
	_ = cmd.MarkFlagRequired("workdir")
	return cmd
}

func printReport(w io.Writer, rep app.Report) {
	prefix := fmt.Sprintf("[procsweep] %s %s:", rep.Phase, rep.WorkDir)
	if rep.RunID != 0 {
		prefix = fmt.Sprintf("[procsweep] run %d %s %s:", rep.RunID, rep.Phase, rep.WorkDir)
	}
	switch {
	case rep.Skipped != "":
		fmt.Fprintf(w, "%s skipped (%s)\n", prefix, rep.Skipped)
	case len(rep.Killed) == 0:
		fmt.Fprintf(w, "%s nothing to kill\n", prefix)
	default:
		fmt.Fprintf(w, "%s killed %d %v\n", prefix, len(rep.Killed), rep.Killed)
	}
	if len(rep.Spared) > 0 {
		fmt.Fprintf(w, "[procsweep] spared: %v\n", rep.Spared)
	}
	if len(rep.Services) > 0 {
		fmt.Fprintf(w, "[procsweep] services stopped: %v\n", rep.Services)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "[procsweep] error: %s\n", e)
	}
}

// spinnerSleep shows a spinner while the grace period runs out.
func spinnerSleep(ctx context.Context, d time.Duration) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" letting processes settle for %s", d)
	s.Start()
	defer s.Stop()
	return sweep.Sleep(ctx, d)
}
