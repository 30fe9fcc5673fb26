package sched

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"lockpilot/internal/exec"
	"lockpilot/internal/history"
	"lockpilot/internal/store"
	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

// Config controls the firing loop.
type Config struct {
	Enabled      bool
	TickInterval time.Duration // default 1s
}

const defaultTickInterval = time.Second

// failWarnEvery throttles repeated failure logs for a timer that stays due
// (e.g. missing OS permission). The timer itself retries every tick.
const failWarnEvery = time.Minute

// Service is the scheduler loop.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log      logx.Logger
	timers   *store.Store
	executor exec.Executor
	hist     history.Store

	// now is the loop's clock; tests inject a fake.
	now func() time.Time

	// inFlight guards against re-dispatching a timer whose action is still
	// running when the next tick arrives.
	fmu      sync.Mutex
	inFlight map[string]struct{}

	wmu          sync.Mutex
	lastFailWarn map[string]time.Time

	stopCh chan struct{}
	loopWG sync.WaitGroup
	fireWG sync.WaitGroup
}

func New(cfg Config, timers *store.Store, executor exec.Executor, hist history.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:          cfg,
		log:          log,
		timers:       timers,
		executor:     executor,
		hist:         hist,
		now:          func() time.Time { return time.Now().UTC() },
		inFlight:     map[string]struct{}{},
		lastFailWarn: map[string]time.Time{},
	}
}

// Apply updates the loop config. A changed tick interval takes effect on the
// next tick; no restart needed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Start launches the tick loop. Idempotent while running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled; not starting")
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler loop", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		s.loop(ctx, stopCh)
	}()
	s.log.Info("scheduler started", logx.Duration("tick", s.tickIntervalLocked()), logx.Int("timers", s.timers.Len()))
}

// Stop halts the loop and waits (bounded by ctx) for in-flight fires to
// finish. Fires that outlive ctx keep running; their store mutations remain
// safe because the store serializes them.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	start := time.Now()
	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		s.fireWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; fires finishing in background")
	}
}

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		tick := time.NewTimer(s.tickInterval())
		select {
		case <-ctx.Done():
			tick.Stop()
			return
		case <-stopCh:
			tick.Stop()
			return
		case <-tick.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tickInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickIntervalLocked()
}

// tickIntervalLocked requires s.mu to be held.
func (s *Service) tickIntervalLocked() time.Duration {
	if s.cfg.TickInterval > 0 {
		return s.cfg.TickInterval
	}
	return defaultTickInterval
}

// tick scans the store once and dispatches every due timer. Due timers are
// independent: each fires on its own goroutine, in creation order of
// dispatch but with no cross-timer ordering guarantee.
func (s *Service) tick(ctx context.Context) {
	now := s.now()
	for _, t := range s.timers.List() {
		if t.TargetTime.After(now) {
			continue
		}
		if !s.markInFlight(t.ID) {
			continue
		}
		s.fireWG.Add(1)
		go func(t timer.Timer) {
			defer s.fireWG.Done()
			defer s.clearInFlight(t.ID)
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic firing timer", logx.String("id", t.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			s.fire(ctx, t)
		}(t)
	}
}

// fire executes one due occurrence and settles the timer's fate:
//   - executor success, recurring: advance to the next occurrence computed
//     from the just-fired target time (catch-up, no missed-fire backlog)
//   - executor success, one-time: retire
//   - executor failure: leave the timer due; next tick retries
//
// A cancel that raced the fire surfaces as ErrNotFound from the store and is
// final: the action fired once, but the timer stays gone.
func (s *Service) fire(ctx context.Context, t timer.Timer) {
	start := time.Now()
	err := s.executor.Execute(ctx, t.Action, t.Message)
	took := time.Since(start)

	s.recordFire(ctx, t, err, took)

	if err != nil {
		s.warnFailure(t, err, took)
		return
	}

	s.forgetFailure(t.ID)
	s.log.Info("timer fired",
		logx.String("id", t.ID),
		logx.String("action", string(t.Action)),
		logx.Duration("took", took))

	var next *time.Time
	if t.Recurrence != nil {
		n, nerr := t.Recurrence.Next(t.TargetTime, s.now())
		if nerr != nil {
			// Cannot happen with store-validated rules; retire rather than
			// refire the same occurrence every tick.
			s.log.Error("recurrence advance failed; retiring timer", logx.String("id", t.ID), logx.Err(nerr))
		} else {
			next = &n
		}
	}

	if aerr := s.timers.AdvanceOrRetire(t.ID, next); aerr != nil {
		if errors.Is(aerr, store.ErrNotFound) {
			s.log.Debug("timer canceled during fire", logx.String("id", t.ID))
			return
		}
		s.log.Warn("timer advance failed", logx.String("id", t.ID), logx.Err(aerr))
		return
	}
	if next != nil {
		s.log.Debug("timer rescheduled", logx.String("id", t.ID), logx.Time("next", *next))
	}
}

func (s *Service) recordFire(ctx context.Context, t timer.Timer, execErr error, took time.Duration) {
	if s.hist == nil {
		return
	}
	rec := history.FireRecord{
		At:      s.now(),
		TimerID: t.ID,
		Action:  string(t.Action),
		Message: t.Message,
		OK:      execErr == nil,
		TookMS:  took.Milliseconds(),
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.hist.AppendFire(hctx, rec); err != nil {
		s.log.Debug("history append failed", logx.Err(err))
	}
}

func (s *Service) markInFlight(id string) bool {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) clearInFlight(id string) {
	s.fmu.Lock()
	delete(s.inFlight, id)
	s.fmu.Unlock()
}

func (s *Service) warnFailure(t timer.Timer, err error, took time.Duration) {
	s.wmu.Lock()
	last := s.lastFailWarn[t.ID]
	throttled := time.Since(last) < failWarnEvery
	if !throttled {
		s.lastFailWarn[t.ID] = time.Now()
	}
	s.wmu.Unlock()

	fields := []logx.Field{
		logx.String("id", t.ID),
		logx.String("action", string(t.Action)),
		logx.String("reason", string(exec.ReasonOf(err))),
		logx.Duration("took", took),
		logx.Err(err),
	}
	if throttled {
		s.log.Debug("action failed; timer remains due", fields...)
	} else {
		s.log.Warn("action failed; timer remains due", fields...)
	}
}

func (s *Service) forgetFailure(id string) {
	s.wmu.Lock()
	delete(s.lastFailWarn, id)
	s.wmu.Unlock()
}
