package main

import (
	"log"

	"github.com/spf13/cobra"

	"procsweep/internal/app"
	"procsweep/internal/tui"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "procsweep-tui",
	Short:        "Browse the sweep history of the local agent",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(app.New(app.Options{ConfigPath: configPath}))
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML, JSON or TOML)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("tui exited with error: %v", err)
	}
}
