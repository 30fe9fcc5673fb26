package app

import (
	"testing"
	"time"

	"lockpilot/internal/config"
)

func TestBuildServicesDefaults(t *testing.T) {
	t.Parallel()
	svc, err := buildServices(&config.Config{})
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	if svc.timers.Path != defaultTimersPath {
		t.Fatalf("timers path = %q, want %q", svc.timers.Path, defaultTimersPath)
	}
	if !svc.scheduler.Enabled || svc.scheduler.TickInterval != defaultTickInterval {
		t.Fatalf("scheduler = %+v", svc.scheduler)
	}
	if svc.executor.Timeout != defaultActionTimeout {
		t.Fatalf("executor timeout = %v", svc.executor.Timeout)
	}
	if !svc.control.Enabled {
		t.Fatal("control should default to enabled")
	}
	if !svc.logging.Console {
		t.Fatal("console logging should default to enabled")
	}
	if svc.history != nil || svc.updater != nil {
		t.Fatal("omitted sections must stay disabled")
	}
}

func TestBuildServicesOverrides(t *testing.T) {
	t.Parallel()
	off := false
	cfg := &config.Config{
		Timers:    config.TimersConfig{Path: "/var/lib/lockpilot/timers.json"},
		Scheduler: config.SchedulerConfig{Enabled: &off, TickInterval: "250ms"},
		Executor:  config.ExecutorConfig{Driver: "log", Timeout: "5s"},
		Control:   config.ControlConfig{Enabled: &off, Addr: "127.0.0.1:9999", Token: "t"},
		History:   &config.HistoryConfig{Driver: "file", Path: "./fires.jsonl"},
		Updater:   &config.UpdaterConfig{Enabled: true, Prerelease: true},
	}

	svc, err := buildServices(cfg)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	if svc.scheduler.Enabled || svc.scheduler.TickInterval != 250*time.Millisecond {
		t.Fatalf("scheduler = %+v", svc.scheduler)
	}
	if svc.executor.Driver != "log" || svc.executor.Timeout != 5*time.Second {
		t.Fatalf("executor = %+v", svc.executor)
	}
	if svc.control.Enabled || svc.control.Addr != "127.0.0.1:9999" {
		t.Fatalf("control = %+v", svc.control)
	}
	if svc.history == nil || svc.history.Driver != "file" {
		t.Fatalf("history = %+v", svc.history)
	}
	if svc.updater == nil || !svc.updater.Prerelease {
		t.Fatalf("updater = %+v", svc.updater)
	}
	// Empty owner/repo fall back to the published repository.
	if svc.updater.Owner != defaultUpdaterOwner || svc.updater.Repo != defaultUpdaterRepo {
		t.Fatalf("updater coords = %s/%s", svc.updater.Owner, svc.updater.Repo)
	}
}

func TestBuildServicesRejectsBadDurations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "tick", cfg: config.Config{Scheduler: config.SchedulerConfig{TickInterval: "soon"}}},
		{name: "timeout", cfg: config.Config{Executor: config.ExecutorConfig{Timeout: "-1s"}}},
		{name: "read timeout", cfg: config.Config{Control: config.ControlConfig{ReadTimeout: "fast"}}},
		{name: "busy timeout", cfg: config.Config{History: &config.HistoryConfig{Driver: "sqlite", Path: "x", BusyTimeout: "zzz"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := buildServices(&tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildServicesNilConfig(t *testing.T) {
	t.Parallel()
	if _, err := buildServices(nil); err == nil {
		t.Fatal("nil config must be rejected")
	}
}
