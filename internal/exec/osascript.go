package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

const (
	defaultOsascriptPath = "/usr/bin/osascript"
	pmsetPath            = "/usr/bin/pmset"
)

// osascriptExecutor drives macOS System Events. Scripts mirror the classic
// AppleScript idioms; the lock action walks a fallback chain because no
// single mechanism works across macOS versions:
//
//  1. trigger the Ctrl+Cmd+Q lock shortcut
//  2. start the current screen saver
//  3. force display sleep via pmset
type osascriptExecutor struct {
	log     logx.Logger
	path    string
	timeout time.Duration
}

func newOsascript(cfg Config, log logx.Logger) *osascriptExecutor {
	path := strings.TrimSpace(cfg.OsascriptPath)
	if path == "" {
		path = defaultOsascriptPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &osascriptExecutor{log: log, path: path, timeout: timeout}
}

func (e *osascriptExecutor) Execute(ctx context.Context, action timer.Action, message string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch action {
	case timer.ActionPopup:
		escaped := strings.ReplaceAll(message, `"`, `\"`)
		script := fmt.Sprintf(`display dialog "%s" with title "LockPilot" buttons {"OK"} default button "OK"`, escaped)
		return e.runScript(ctx, script)
	case timer.ActionLock:
		return e.lock(ctx)
	case timer.ActionShutdown:
		return e.runScript(ctx, `tell application "System Events" to shut down`)
	case timer.ActionRestart:
		return e.runScript(ctx, `tell application "System Events" to restart`)
	default:
		return &Error{Reason: ReasonUnavailable, Err: fmt.Errorf("unsupported action %q", string(action))}
	}
}

func (e *osascriptExecutor) lock(ctx context.Context) error {
	err := e.runScript(ctx, `tell application "System Events" to keystroke "q" using {control down, command down}`)
	if err == nil {
		return nil
	}
	e.log.Debug("lock keystroke failed; trying screen saver", logx.Err(err))

	err = e.runScript(ctx, `tell application "System Events" to start current screen saver`)
	if err == nil {
		return nil
	}
	e.log.Debug("screen saver failed; forcing display sleep", logx.Err(err))

	cmd := osexec.CommandContext(ctx, pmsetPath, "displaysleepnow")
	if out, runErr := cmd.CombinedOutput(); runErr != nil {
		return classify(fmt.Errorf("pmset displaysleepnow: %w (%s)", runErr, strings.TrimSpace(string(out))))
	}
	return nil
}

func (e *osascriptExecutor) runScript(ctx context.Context, script string) error {
	cmd := osexec.CommandContext(ctx, e.path, "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return classify(err)
	}
	return nil
}

// classify maps process-level failures onto the executor error taxonomy.
// AppleScript surfaces missing automation consent as errAEEventNotPermitted
// (-1743) or "not allowed assistive access" (-25211/1002).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, osexec.ErrNotFound) {
		return &Error{Reason: ReasonUnavailable, Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "-1743"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "not allowed"),
		strings.Contains(msg, "1002"):
		return &Error{Reason: ReasonPermissionDenied, Err: err}
	case strings.Contains(msg, "no such file"),
		strings.Contains(msg, "executable file not found"):
		return &Error{Reason: ReasonUnavailable, Err: err}
	default:
		return &Error{Reason: ReasonFailed, Err: err}
	}
}
