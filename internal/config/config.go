package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "PROCSWEEP"

	defaultGracePeriod = 5 * time.Second
	defaultToolName    = "handle.exe"
	defaultCodepage    = "auto"
	defaultHistorySize = 200
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
)

// Config aggregates the sweep settings plus agent and logging knobs.
type Config struct {
	Disabled            bool
	AdditionalProcesses []string
	WindowsServices     []string
	Diagnostics         bool
	GracePeriod         time.Duration

	ToolRoot   string
	ToolBundle string
	ToolName   string
	Codepage   string

	HistorySize int

	LogLevel  string
	LogFormat string
}

// Load builds a Config from defaults, an optional config file (YAML, JSON or
// TOML by extension) and PROCSWEEP_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("disabled", false)
	v.SetDefault("additional_processes", "")
	v.SetDefault("windows_services", "")
	v.SetDefault("diagnostics", false)
	v.SetDefault("grace_period", defaultGracePeriod.String())
	v.SetDefault("tool_root", defaultToolRoot())
	v.SetDefault("tool_bundle", defaultToolBundle())
	v.SetDefault("tool_name", defaultToolName)
	v.SetDefault("codepage", defaultCodepage)
	v.SetDefault("history_size", defaultHistorySize)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Disabled:            v.GetBool("disabled"),
		AdditionalProcesses: listSetting(v, "additional_processes"),
		WindowsServices:     listSetting(v, "windows_services"),
		Diagnostics:         v.GetBool("diagnostics"),
		ToolRoot:            strings.TrimSpace(v.GetString("tool_root")),
		ToolBundle:          strings.TrimSpace(v.GetString("tool_bundle")),
		ToolName:            strings.TrimSpace(v.GetString("tool_name")),
		Codepage:            strings.TrimSpace(v.GetString("codepage")),
		HistorySize:         v.GetInt("history_size"),
		LogLevel:            strings.TrimSpace(v.GetString("log_level")),
		LogFormat:           strings.TrimSpace(v.GetString("log_format")),
	}

	grace, err := time.ParseDuration(strings.TrimSpace(v.GetString("grace_period")))
	if err != nil {
		return cfg, fmt.Errorf("parse grace_period: %w", err)
	}
	if grace <= 0 {
		return cfg, errors.New("grace_period must be > 0")
	}
	cfg.GracePeriod = grace

	if cfg.ToolName == "" {
		cfg.ToolName = defaultToolName
	}
	if cfg.HistorySize <= 0 {
		return cfg, errors.New("history_size must be > 0")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("parse log_level: %w", err)
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return cfg, fmt.Errorf("log_format must be console or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// SplitList splits a comma-separated setting, trimming entries and dropping
// empty ones. An all-blank value yields nil.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// listSetting accepts either a comma-separated string or a list in the
// config file.
func listSetting(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).([]any); ok {
		parts := make([]string, 0, len(raw))
		for _, item := range raw {
			parts = append(parts, fmt.Sprint(item))
		}
		return SplitList(strings.Join(parts, ","))
	}
	return SplitList(v.GetString(key))
}

func defaultToolRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "procsweep")
}

func defaultToolBundle() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
