// Package exec performs the OS-level effect of a due timer.
//
// The scheduler treats an Executor as an opaque capability: it fires the
// action and learns only success or failure. Failure reasons exist so the
// control surface can tell "grant the permission" apart from "this host
// cannot do that", but the scheduler's reaction is the same either way —
// keep the timer due and retry next tick.
package exec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

// Reason classifies an execution failure.
type Reason string

const (
	// ReasonPermissionDenied means the OS refused the action (e.g. missing
	// automation/accessibility consent). Retrying can succeed once granted.
	ReasonPermissionDenied Reason = "permission_denied"
	// ReasonUnavailable means the mechanism is missing on this host
	// (binary not found, unsupported platform).
	ReasonUnavailable Reason = "unavailable"
	// ReasonFailed is any other execution error.
	ReasonFailed Reason = "failed"
)

// Error is the executor failure type.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Executor carries out a timer action.
//
// Execute blocks until the action completed or ctx expired; it must be safe
// for concurrent calls (independent due timers fire on separate goroutines).
type Executor interface {
	Execute(ctx context.Context, action timer.Action, message string) error
}

// Config selects and bounds the executor.
type Config struct {
	// Driver is "osascript" (macOS System Events) or "log" (no-op logger,
	// for non-macOS hosts and tests).
	Driver string
	// Timeout bounds a single Execute call. Zero means DefaultTimeout.
	Timeout time.Duration
	// OsascriptPath overrides the osascript binary location.
	OsascriptPath string
}

// DefaultTimeout bounds one action execution so a wedged OS dialog can never
// stall the scheduler's view of a timer forever.
const DefaultTimeout = 30 * time.Second

// New builds the configured executor.
func New(cfg Config, log logx.Logger) (Executor, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "osascript":
		return newOsascript(cfg, log), nil
	case "log", "noop":
		return &logExecutor{log: log}, nil
	default:
		return nil, fmt.Errorf("unknown executor driver %q", cfg.Driver)
	}
}

// logExecutor records the action instead of performing it.
type logExecutor struct {
	log logx.Logger
}

func (e *logExecutor) Execute(_ context.Context, action timer.Action, message string) error {
	e.log.Info("action fired (log driver)",
		logx.String("action", string(action)),
		logx.String("message", message))
	return nil
}

// ReasonOf extracts the failure reason, defaulting to ReasonFailed for
// errors that did not come from an Executor.
func ReasonOf(err error) Reason {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ReasonFailed
}
