package app

import (
	"io"
	"os"

	"go.uber.org/zap"

	"procsweep/internal/config"
	"procsweep/internal/logging"
	"procsweep/internal/sweep"
)

// Options configures the top-level controller.
type Options struct {
	// ConfigPath points to the optional config file.
	ConfigPath string
	// Output receives tool echoes and [procsweep] lines of local sweeps.
	// Defaults to stdout.
	Output io.Writer
	// Sleep replaces the grace period wait of local sweeps.
	Sleep sweep.SleepFunc
	// Logger overrides the logger built from the config.
	Logger *zap.Logger
}

// App exposes high-level operations that the CLI/TUI can reuse.
type App struct {
	cfgPath string
	out     io.Writer
	sleep   sweep.SleepFunc
	log     *zap.Logger
}

// New constructs the shared controller facade.
func New(opts Options) *App {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &App{
		cfgPath: opts.ConfigPath,
		out:     out,
		sleep:   opts.Sleep,
		log:     opts.Logger,
	}
}

// ConfigPath returns the configured config file path (if any).
func (a *App) ConfigPath() string {
	return a.cfgPath
}

func (a *App) loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return cfg, nil, err
	}
	if a.log != nil {
		return cfg, a.log, nil
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}
