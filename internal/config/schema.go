// Package config loads each daemon's own runtime configuration — socket
// paths, ring capacity, TTLs, reconnect backoff bounds, and watchdog
// settings. It does not read the collaborator-owned project/rule/
// classification JSON files; those are parsed by external tooling and
// handed to the core in already-parsed form.
package config

// Config is the top-level daemon configuration document.
type Config struct {
	RPC        RPCConfig        `json:"rpc"`
	DebugHTTP  DebugHTTPConfig  `json:"debug_http"`
	WM         WMConfig         `json:"wm"`
	Ring       RingConfig       `json:"ring"`
	HashCache  HashCacheConfig  `json:"hash_cache"`
	Launch     LaunchConfig     `json:"launch"`
	Action     ActionConfig     `json:"action"`
	Tracker    TrackerConfig    `json:"tracker"`
	Rules      RulesConfig      `json:"rules"`
	Identity   IdentityConfig   `json:"identity"`
	Panel      PanelConfig      `json:"panel"`
	Shutdown   ShutdownConfig   `json:"shutdown"`
	Watchdog   WatchdogConfig   `json:"watchdog"`

	// ProjectsDir holds one <name>.json file per known project.
	ProjectsDir string `json:"projects_dir"`
	// ActiveProjectPath is the durable active/previous project pointer.
	ActiveProjectPath string `json:"active_project_path"`
	// ClassificationPath is the app-classes.json C7 falls back to when no
	// I3PM_* environment is present on a window's owning process.
	ClassificationPath string `json:"classification_path"`
}

// IdentityConfig configures C7.
type IdentityConfig struct {
	// TitleOverrideClasses lists classes whose window title is parsed for
	// a project-override mark (defaults to {"Code"}).
	TitleOverrideClasses []string `json:"title_override_classes"`
}

// RPCConfig configures the C13 local-socket JSON-RPC surface.
type RPCConfig struct {
	SocketPath string `json:"socket_path"`
}

// DebugHTTPConfig configures the optional read-only observability surface.
type DebugHTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// WMConfig configures C1's connection and reconnection behavior.
type WMConfig struct {
	SocketEnvVars      []string `json:"socket_env_vars"`
	RuntimeDirOverride string   `json:"runtime_dir_override"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts"`
	InitialBackoffMS   int      `json:"initial_backoff_ms"`
	MaxBackoffMS       int      `json:"max_backoff_ms"`
	MarkDelayMS        int      `json:"mark_delay_ms"`
	MarkRaceLastClasses []string `json:"mark_race_last_classes"`
}

// RingConfig configures C4.
type RingConfig struct {
	Capacity int `json:"capacity"`
}

// HashCacheConfig configures C2.
type HashCacheConfig struct {
	TTLSeconds              int `json:"ttl_seconds"`
	OpportunisticSweepSeconds int `json:"opportunistic_sweep_seconds"`
	PeriodicSweepSeconds    int `json:"periodic_sweep_seconds"`
}

// LaunchConfig configures C10.
type LaunchConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
	MaxPending int `json:"max_pending"`
}

// ActionConfig configures C11.
type ActionConfig struct {
	WindowMS            int `json:"window_ms"`
	CorrelationWindowMS int `json:"correlation_window_ms"`
	MaxCascadeChains    int `json:"max_cascade_chains"`
	CascadeRetentionMS  int `json:"cascade_retention_ms"`
}

// TrackerConfig configures C6.
type TrackerConfig struct {
	FilePath           string `json:"file_path"`
	FallbackWorkspace  int    `json:"fallback_workspace"`
	MaxAgeDays         int    `json:"max_age_days"`
}

// RulesConfig configures C8.
type RulesConfig struct {
	FilePath      string `json:"file_path"`
	DebounceMS    int    `json:"debounce_ms"`
	ActionBudgetMS int   `json:"action_budget_ms"`
}

// PanelConfig configures the optional C15 publisher.
type PanelConfig struct {
	Enabled      bool   `json:"enabled"`
	Command      string `json:"command"`
	DebounceMS   int    `json:"debounce_ms"`
	TimeoutMS    int    `json:"timeout_ms"`
}

// ShutdownConfig configures graceful-teardown budgets.
type ShutdownConfig struct {
	OverallBudgetSeconds     int `json:"overall_budget_seconds"`
	SwitchQueueDrainSeconds  int `json:"switch_queue_drain_seconds"`
	RPCDrainSeconds          int `json:"rpc_drain_seconds"`
}

// WatchdogConfig configures service-manager watchdog notification.
type WatchdogConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}
