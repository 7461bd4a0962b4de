package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory, preferring
// the HJSON form.
func (l *Loader) FindConfig(names ...string) (string, error) {
	if len(names) == 0 {
		names = []string{"i3pm-eventd.hjson", "i3pm-eventd.json"}
	}

	for _, name := range names {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for %v)", names)
}

// applyDefaults fills in conservative defaults for each component's resource
// bounds and timing so a minimal or absent config file still produces a
// runnable daemon.
func applyDefaults(cfg *Config) {
	if cfg.RPC.SocketPath == "" {
		cfg.RPC.SocketPath = filepath.Join(defaultRuntimeDir(), "i3pm-eventd.sock")
	}

	if cfg.DebugHTTP.Addr == "" {
		cfg.DebugHTTP.Addr = "127.0.0.1:9091"
	}

	if len(cfg.WM.SocketEnvVars) == 0 {
		cfg.WM.SocketEnvVars = []string{"SWAYSOCK", "I3SOCK"}
	}
	if cfg.WM.MaxReconnectAttempts == 0 {
		cfg.WM.MaxReconnectAttempts = 20
	}
	if cfg.WM.InitialBackoffMS == 0 {
		cfg.WM.InitialBackoffMS = 100
	}
	if cfg.WM.MaxBackoffMS == 0 {
		cfg.WM.MaxBackoffMS = 5000
	}
	if cfg.WM.MarkDelayMS == 0 {
		cfg.WM.MarkDelayMS = 50
	}
	if len(cfg.WM.MarkRaceLastClasses) == 0 {
		cfg.WM.MarkRaceLastClasses = []string{"Code"}
	}

	if cfg.Ring.Capacity == 0 {
		cfg.Ring.Capacity = 500
	}

	if cfg.HashCache.TTLSeconds == 0 {
		cfg.HashCache.TTLSeconds = 60
	}
	if cfg.HashCache.OpportunisticSweepSeconds == 0 {
		cfg.HashCache.OpportunisticSweepSeconds = 10
	}
	if cfg.HashCache.PeriodicSweepSeconds == 0 {
		cfg.HashCache.PeriodicSweepSeconds = 60
	}

	if cfg.Launch.TTLSeconds == 0 {
		cfg.Launch.TTLSeconds = 5
	}
	if cfg.Launch.MaxPending == 0 {
		cfg.Launch.MaxPending = 1000
	}

	if cfg.Action.WindowMS == 0 {
		cfg.Action.WindowMS = 5000
	}
	if cfg.Action.CorrelationWindowMS == 0 {
		cfg.Action.CorrelationWindowMS = 500
	}
	if cfg.Action.MaxCascadeChains == 0 {
		cfg.Action.MaxCascadeChains = 50
	}
	if cfg.Action.CascadeRetentionMS == 0 {
		cfg.Action.CascadeRetentionMS = 5000
	}

	if cfg.Tracker.FilePath == "" {
		cfg.Tracker.FilePath = filepath.Join(defaultStateDir(), "window-workspace-map.json")
	}
	if cfg.Tracker.FallbackWorkspace == 0 {
		cfg.Tracker.FallbackWorkspace = 1
	}
	if cfg.Tracker.MaxAgeDays == 0 {
		cfg.Tracker.MaxAgeDays = 30
	}

	if cfg.Rules.FilePath == "" {
		cfg.Rules.FilePath = filepath.Join(defaultStateDir(), "window-rules.json")
	}
	if cfg.Rules.DebounceMS == 0 {
		cfg.Rules.DebounceMS = 100
	}
	if cfg.Rules.ActionBudgetMS == 0 {
		cfg.Rules.ActionBudgetMS = 25
	}

	if len(cfg.Identity.TitleOverrideClasses) == 0 {
		cfg.Identity.TitleOverrideClasses = []string{"Code"}
	}

	if cfg.ProjectsDir == "" {
		cfg.ProjectsDir = filepath.Join(defaultStateDir(), "projects")
	}
	if cfg.ActiveProjectPath == "" {
		cfg.ActiveProjectPath = filepath.Join(defaultStateDir(), "active-project.json")
	}
	if cfg.ClassificationPath == "" {
		cfg.ClassificationPath = filepath.Join(defaultStateDir(), "app-classes.json")
	}

	if cfg.Panel.Command == "" {
		cfg.Panel.Command = "eww update panel_state={}"
	}
	if cfg.Panel.DebounceMS == 0 {
		cfg.Panel.DebounceMS = 50
	}
	if cfg.Panel.TimeoutMS == 0 {
		cfg.Panel.TimeoutMS = 2000
	}

	if cfg.Shutdown.OverallBudgetSeconds == 0 {
		cfg.Shutdown.OverallBudgetSeconds = 10
	}
	if cfg.Shutdown.SwitchQueueDrainSeconds == 0 {
		cfg.Shutdown.SwitchQueueDrainSeconds = 2
	}
	if cfg.Shutdown.RPCDrainSeconds == 0 {
		cfg.Shutdown.RPCDrainSeconds = 5
	}

	if cfg.Watchdog.IntervalSeconds == 0 {
		cfg.Watchdog.IntervalSeconds = 30
	}
}

func defaultRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("i3pm-%d", os.Getuid()))
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "i3pm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "i3pm")
	}
	return filepath.Join(home, ".local", "state", "i3pm")
}
