package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"procsweep/internal/daemon"
)

var (
	configPath string
	force      bool
)

var rootCmd = &cobra.Command{
	Use:          "procsweep-agent",
	Short:        "Resident sweep agent for a worker machine",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemon.IsRunning() {
			if !force {
				pid, err := daemon.RunningPID()
				if err != nil {
					log.Printf("Agent appears running but pid check failed: %v", err)
					return nil
				}
				log.Printf("Agent is already running (pid %d). Use --force to restart.", pid)
				return nil
			}
			log.Printf("Stopping existing agent...")
			if err := daemon.StopRunningDaemon(true); err != nil {
				return err
			}
		}

		srv, err := daemon.StartDaemon(configPath)
		if err != nil {
			return err
		}
		log.Printf("Agent started (pid %d) on %s. Press Ctrl+C to stop.", os.Getpid(), daemon.SocketPath())

		select {
		case <-cmd.Context().Done():
		case err := <-srv.Done():
			_ = srv.Close()
			return err
		}
		log.Printf("Stopping agent...")
		if err := srv.Close(); err != nil {
			return err
		}
		log.Printf("Agent stopped.")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML, JSON or TOML)")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "Stop an existing agent before starting")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("agent: %v", err)
	}
}
