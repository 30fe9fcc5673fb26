// Package supervisor runs named background goroutines tied to a shared
// context, with panic recovery and timeout-aware shutdown.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	logx "lockpilot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger
	wg     sync.WaitGroup
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn on its own goroutine. Panics are recovered and logged; a
// non-nil return is logged but does not cancel siblings.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in goroutine",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()
		start := time.Now()
		s.log.Debug("goroutine started", logx.String("name", name))
		err := fn(s.ctx)
		if err != nil && s.ctx.Err() == nil {
			s.log.Warn("goroutine exited with error",
				logx.String("name", name),
				logx.Duration("ran", time.Since(start)),
				logx.Err(err))
			return
		}
		s.log.Debug("goroutine stopped", logx.String("name", name), logx.Duration("ran", time.Since(start)))
	}()
}

// Stop cancels the shared context and waits for goroutines, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("supervisor stop timed out; goroutines finishing in background")
	}
}
