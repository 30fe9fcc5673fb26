// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	"lockpilot/internal/config"
	"lockpilot/internal/control"
	"lockpilot/internal/exec"
	"lockpilot/internal/history"
	"lockpilot/internal/runtime/supervisor"
	"lockpilot/internal/sched"
	"lockpilot/internal/store"
	"lockpilot/internal/update"
	"lockpilot/internal/version"
	logx "lockpilot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	timers    *store.Store
	hist      history.Store
	executor  exec.Executor
	scheduler *sched.Service
	control   *control.Server
	updater   *update.Client

	sup   *supervisor.Supervisor
	cfgCh chan *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	svc, err := buildServices(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(svc.logging)
	mgr.SetLogger(log.With(logx.String("svc", "config")))
	// Reject a hot-reloaded config that would not survive buildServices.
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		_, verr := buildServices(c)
		return verr
	})

	timers, err := store.Open(svc.timers, log.With(logx.String("svc", "store")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	// History is observational; a broken backend must not block startup.
	var hist history.Store
	if svc.history != nil {
		hist, err = history.Open(*svc.history, log.With(logx.String("svc", "history")))
		if err != nil {
			log.Warn("fire history disabled", logx.Err(err))
			hist = nil
		}
	}

	executor, err := exec.New(svc.executor, log.With(logx.String("svc", "exec")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	var updater *update.Client
	if svc.updater != nil {
		updater = update.NewClient(*svc.updater, log.With(logx.String("svc", "update")))
	}

	scheduler := sched.New(svc.scheduler, timers, executor, hist, log.With(logx.String("svc", "sched")))
	ctrl := control.New(svc.control, timers, hist, updater, version.Version, log.With(logx.String("svc", "control")))

	return &App{
		cfgMgr:    mgr,
		logSvc:    logSvc,
		log:       log,
		timers:    timers,
		hist:      hist,
		executor:  executor,
		scheduler: scheduler,
		control:   ctrl,
		updater:   updater,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log.With(logx.String("svc", "supervisor")))

	if err := a.control.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	a.scheduler.Start(a.sup.Context())

	a.cfgCh = a.cfgMgr.Subscribe(4)
	a.sup.Go("config-watch", a.cfgMgr.Watch)
	a.sup.Go("config-apply", a.applyLoop)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started", logx.String("version", version.Version))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.control.Stop(ctx)
	a.scheduler.Stop(ctx)
	if a.sup != nil {
		a.sup.Stop(ctx)
	}
	a.cfgMgr.Unsubscribe(a.cfgCh)
	if a.hist != nil {
		_ = a.hist.Close()
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return nil
}

// applyLoop applies hot-reloaded configs. Logging and scheduler settings
// take effect immediately; store path, executor, history, control and
// updater settings take effect on restart.
func (a *App) applyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return nil
			}
			svc, err := buildServices(cfg)
			if err != nil {
				// Validator should have rejected this already.
				a.log.Warn("ignoring invalid config update", logx.Err(err))
				continue
			}
			a.logSvc.Apply(svc.logging)
			a.scheduler.Apply(svc.scheduler)
			if svc.scheduler.Enabled {
				a.scheduler.Start(ctx)
			} else {
				a.scheduler.Stop(ctx)
			}
			a.log.Info("config applied",
				logx.Bool("scheduler_enabled", svc.scheduler.Enabled),
				logx.Duration("tick", svc.scheduler.TickInterval))
		}
	}
}
