package sweep

import (
	"fmt"
	"os"
	"runtime"

	"procsweep/internal/config"
)

// Overrides adjust a loaded configuration for a single invocation. Non-empty
// lists replace the configured ones; Diagnostics only switches reporting on.
type Overrides struct {
	ExtraNames      []string
	ServicePatterns []string
	Diagnostics     bool
}

// SettingsFromConfig merges cfg and ov into sweep settings.
func SettingsFromConfig(cfg config.Config, ov Overrides) Settings {
	s := Settings{
		Disabled:        cfg.Disabled,
		ExtraNames:      cfg.AdditionalProcesses,
		ServicePatterns: cfg.WindowsServices,
		Diagnostics:     cfg.Diagnostics || ov.Diagnostics,
		GracePeriod:     cfg.GracePeriod,
	}
	if len(ov.ExtraNames) > 0 {
		s.ExtraNames = ov.ExtraNames
	}
	if len(ov.ServicePatterns) > 0 {
		s.ServicePatterns = ov.ServicePatterns
	}
	return s
}

// FromConfig builds a Sweeper for the local machine. Settings, encoding and
// the tool bundle come from cfg and ov; every other field of base is kept.
func FromConfig(cfg config.Config, ov Overrides, base Options) (*Sweeper, error) {
	enc, err := ResolveEncoding(cfg.Codepage)
	if err != nil {
		return nil, fmt.Errorf("resolve codepage: %w", err)
	}
	prov := &Provisioner{Name: cfg.ToolName, Logger: base.Logger}
	if cfg.ToolBundle != "" {
		prov.Bundle = os.DirFS(cfg.ToolBundle)
	}
	base.Settings = SettingsFromConfig(cfg, ov)
	base.Provisioner = prov
	base.Encoding = enc
	return New(base), nil
}

// LocalTarget describes a sweep of workDir on this machine. An empty
// toolRoot falls back to the configured one.
func LocalTarget(cfg config.Config, workDir, toolRoot string) Target {
	if toolRoot == "" {
		toolRoot = cfg.ToolRoot
	}
	return Target{
		WorkDir:  workDir,
		ToolRoot: toolRoot,
		Unix:     runtime.GOOS != "windows",
	}
}
