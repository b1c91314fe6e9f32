package main

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cmdAgent)
	cmdAgent.AddCommand(cmdAgentStop)
	cmdAgent.AddCommand(cmdAgentStatus)
}

var (
	agentForceRestart bool
	agentForceStop    bool
)

func init() {
	cmdAgent.Flags().BoolVarP(&agentForceRestart, "force", "f", false, "Restart the agent if it is already running")
	cmdAgentStop.Flags().BoolVarP(&agentForceStop, "force", "f", false, "Kill the agent if it does not exit in time")
}

var cmdAgent = &cobra.Command{
	Use:   "agent",
	Short: "Run the sweep agent in the foreground",
	Long:  `The agent runs sweeps on behalf of "before --agent" and "after --agent" and keeps their history. If an agent is already running, nothing happens unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := controller()
		out := cmd.OutOrStdout()

		// 0) check if the agent is running
		st, err := ctl.Status()
		if st.Running {
			if !agentForceRestart {
				switch {
				case err != nil:
					fmt.Fprintf(out, "Error checking if agent is running: %v\n", err)
				case st.PID != 0:
					fmt.Fprintf(out, "Agent is already running (pid %d). Stop it manually or re-run with --force.\n", st.PID)
				default:
					fmt.Fprintln(out, "Agent is already running. Stop it manually or re-run with --force.")
				}
				return nil
			}
			fmt.Fprintln(out, "Stopping existing agent process...")
			if err := ctl.StopDaemon(true); err != nil {
				return err
			}
		}

		// 1) Not running, so start it
		h, err := ctl.StartDaemon()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Started agent on %s\n", st.Socket)
		runSpin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(out))
		runSpin.Suffix = " Running..."
		runSpin.Start()

		// 2) Wait for SIGINT or SIGTERM to stop
		select {
		case <-cmd.Context().Done():
		case err := <-h.Done():
			runSpin.Stop()
			_ = h.Close()
			return err
		}
		runSpin.Stop()
		return h.Close()
	},
}

var cmdAgentStop = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := controller().StopDaemon(agentForceStop); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Agent stopped")
		return nil
	},
}

var cmdAgentStatus = &cobra.Command{
	Use:   "status",
	Short: "Show whether the agent is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := controller().Status()
		if err != nil {
			return err
		}
		if !st.Running {
			fmt.Fprintf(cmd.OutOrStdout(), "Agent is not running (socket %s)\n", st.Socket)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Agent is running (pid %d, socket %s)\n", st.PID, st.Socket)
		return nil
	},
}
