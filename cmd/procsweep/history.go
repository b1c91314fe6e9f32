package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"procsweep/internal/app"
)

var (
	historyRunID   uint64
	historyLimit   int
	historyPhase   string
	historyWorkDir string
	historyTimeout int
)

func init() {
	rootCmd.AddCommand(cmdHistory)
	cmdHistory.Flags().Uint64Var(&historyRunID, "id", 0, "Show only the run with this id, in detail")
	cmdHistory.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most this many runs (0 for all)")
	cmdHistory.Flags().StringVar(&historyPhase, "phase", "", "Only show runs of this phase (before or after)")
	cmdHistory.Flags().StringVarP(&historyWorkDir, "workdir", "w", "", "Only show runs for this work directory")
	cmdHistory.Flags().IntVarP(&historyTimeout, "timeout", "t", 5, "Timeout in seconds for the agent call")
}

var cmdHistory = &cobra.Command{
	Use:   "history",
	Short: "List sweeps recorded by the agent",
	Long:  `Fetches the run history from the agent via gRPC, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := controller().History(cmd.Context(), app.HistoryParams{
			RunID:   historyRunID,
			Limit:   historyLimit,
			Phase:   historyPhase,
			WorkDir: historyWorkDir,
			Timeout: time.Duration(historyTimeout) * time.Second,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No sweeps recorded")
			return nil
		}
		if historyRunID != 0 {
			printReport(out, runs[0])
			return nil
		}
		for _, run := range runs {
			fmt.Fprintf(out, "[run=%d] %s %-6s %-8s killed=%v at=%s\n",
				run.RunID, run.StartedAt.Local().Format(time.DateTime), run.Phase, run.Outcome(), run.Killed, run.WorkDir)
		}
		return nil
	},
}
