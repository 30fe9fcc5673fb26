package app

import (
	"errors"
	"strings"
	"time"

	"lockpilot/internal/config"
	"lockpilot/internal/control"
	"lockpilot/internal/exec"
	"lockpilot/internal/history"
	"lockpilot/internal/sched"
	"lockpilot/internal/store"
	"lockpilot/internal/update"
	logx "lockpilot/pkg/logx"
)

const (
	defaultTimersPath    = "./timers.json"
	defaultUpdaterOwner  = "maxacode"
	defaultUpdaterRepo   = "LogPilotMac"
	defaultTickInterval  = time.Second
	defaultActionTimeout = 30 * time.Second
)

// services holds the per-service configs derived from one config.Config.
// Deriving them all up front doubles as validation for hot reloads.
type services struct {
	logging   logx.Config
	timers    store.Config
	scheduler sched.Config
	executor  exec.Config
	control   control.Config
	history   *history.Config
	updater   *update.Config
}

func buildServices(cfg *config.Config) (*services, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	out := &services{}

	out.logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: config.BoolOr(cfg.Logging.Console, true),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}

	out.timers = store.Config{Path: cfg.Timers.Path}
	if strings.TrimSpace(out.timers.Path) == "" {
		out.timers.Path = defaultTimersPath
	}

	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, defaultTickInterval)
	if err != nil {
		return nil, err
	}
	out.scheduler = sched.Config{
		Enabled:      config.BoolOr(cfg.Scheduler.Enabled, true),
		TickInterval: tick,
	}

	execTimeout, err := config.ParseDurationOrDefault("executor.timeout", cfg.Executor.Timeout, defaultActionTimeout)
	if err != nil {
		return nil, err
	}
	out.executor = exec.Config{
		Driver:        cfg.Executor.Driver,
		Timeout:       execTimeout,
		OsascriptPath: cfg.Executor.OsascriptPath,
	}

	readTimeout, err := config.ParseDurationField("control.read_timeout", cfg.Control.ReadTimeout)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := config.ParseDurationField("control.write_timeout", cfg.Control.WriteTimeout)
	if err != nil {
		return nil, err
	}
	out.control = control.Config{
		Enabled:      config.BoolOr(cfg.Control.Enabled, true),
		Addr:         cfg.Control.Addr,
		Token:        cfg.Control.Token,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	if cfg.History != nil {
		busy, herr := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
		if herr != nil {
			return nil, herr
		}
		out.history = &history.Config{
			Driver:      cfg.History.Driver,
			Path:        cfg.History.Path,
			BusyTimeout: busy,
		}
	}

	if cfg.Updater != nil && cfg.Updater.Enabled {
		owner := strings.TrimSpace(cfg.Updater.Owner)
		if owner == "" {
			owner = defaultUpdaterOwner
		}
		repo := strings.TrimSpace(cfg.Updater.Repo)
		if repo == "" {
			repo = defaultUpdaterRepo
		}
		out.updater = &update.Config{
			Enabled:    true,
			Owner:      owner,
			Repo:       repo,
			Prerelease: cfg.Updater.Prerelease,
		}
	}

	return out, nil
}
