package config

// Config is the on-disk configuration (YAML or JSON, decoded strictly).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Timers    TimersConfig    `json:"timers"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Executor  ExecutorConfig  `json:"executor"`
	Control   ControlConfig   `json:"control"`

	// History records executor invocations; omitted means disabled.
	History *HistoryConfig `json:"history,omitempty"`
	// Updater enables the release-channel client; omitted means disabled.
	Updater *UpdaterConfig `json:"updater,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TimersConfig locates the persisted timer set.
type TimersConfig struct {
	Path string `json:"path,omitempty"` // default "./timers.json"
}

// SchedulerConfig controls the firing loop.
//
// All durations are Go duration strings (e.g. "500ms", "1s").
// Enabled is a pointer so an omitted field defaults to true.
type SchedulerConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	TickInterval string `json:"tick_interval,omitempty"` // default "1s"
}

// ExecutorConfig selects the action executor.
type ExecutorConfig struct {
	Driver        string `json:"driver,omitempty"`  // osascript (default) | log
	Timeout       string `json:"timeout,omitempty"` // per-action bound, default "30s"
	OsascriptPath string `json:"osascript_path,omitempty"`
}

// HistoryConfig controls the optional fire history.
//
// Example:
//
//	"history": { "driver": "file", "path": "./fires.jsonl" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ControlConfig controls the loopback HTTP control server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8787").
//   - If you bind to a non-loopback address, set a token.
type ControlConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	Addr         string `json:"addr,omitempty"`  // default "127.0.0.1:8787"
	Token        string `json:"token,omitempty"` // optional bearer token (do not log)
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// UpdaterConfig points at the release listing for the update channel.
type UpdaterConfig struct {
	Enabled    bool   `json:"enabled"`
	Owner      string `json:"owner,omitempty"` // default "maxacode"
	Repo       string `json:"repo,omitempty"`  // default "LogPilotMac"
	Prerelease bool   `json:"prerelease,omitempty"`
}

// BoolOr resolves an optional bool with a default for the omitted case.
func BoolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
