package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cmdPing)
}

var pingTimeoutSeconds int

func init() {
	cmdPing.Flags().IntVarP(&pingTimeoutSeconds, "timeout", "t", 2, "Timeout in seconds for agent ping")
}

// `procsweep ping` checks that the agent answers; prints "pong" on success.
var cmdPing = &cobra.Command{
	Use:   "ping",
	Short: "Check agent availability (expects 'pong')",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := controller().Ping(cmd.Context(), time.Duration(pingTimeoutSeconds)*time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}
