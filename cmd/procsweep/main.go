package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"procsweep/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "procsweep [command]",
	Short: "procsweep: kill processes that lock a work directory",
	Long: `procsweep finds the processes holding open handles inside a work directory
(plus processes and services selected by name) and force-kills them so the
directory can be removed. It is a no-op where open files do not block deletion.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML, JSON or TOML)")
}

// controllerAPI is the slice of app.App the commands use.
type controllerAPI interface {
	Ping(ctx context.Context, timeout time.Duration) (string, error)
	Sweep(ctx context.Context, params app.SweepParams) (app.Report, error)
	History(ctx context.Context, params app.HistoryParams) ([]app.Report, error)
	Status() (app.DaemonStatus, error)
	StopDaemon(force bool) error
	StartDaemon() (*app.DaemonHandle, error)
}

var controllerFactory = func() controllerAPI {
	return app.New(app.Options{ConfigPath: configPath, Sleep: spinnerSleep})
}

func controller() controllerAPI {
	return controllerFactory()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
