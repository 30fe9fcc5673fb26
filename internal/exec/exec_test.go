package exec

import (
	"context"
	"errors"
	osexec "os/exec"
	"testing"

	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

func TestNewDriverSelection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver  string
		want    string // type name
		wantErr bool
	}{
		{driver: "", want: "osascript"},
		{driver: "osascript", want: "osascript"},
		{driver: "log", want: "log"},
		{driver: "noop", want: "log"},
		{driver: " Log ", want: "log"},
		{driver: "powershell", wantErr: true},
	}
	for _, tt := range tests {
		e, err := New(Config{Driver: tt.driver}, logx.Nop())
		if tt.wantErr {
			if err == nil {
				t.Fatalf("New(%q) should fail", tt.driver)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q): %v", tt.driver, err)
		}
		switch tt.want {
		case "osascript":
			if _, ok := e.(*osascriptExecutor); !ok {
				t.Fatalf("New(%q) = %T, want osascriptExecutor", tt.driver, e)
			}
		case "log":
			if _, ok := e.(*logExecutor); !ok {
				t.Fatalf("New(%q) = %T, want logExecutor", tt.driver, e)
			}
		}
	}
}

func TestLogExecutorAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	e, err := New(Config{Driver: "log"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for _, action := range []timer.Action{timer.ActionPopup, timer.ActionLock, timer.ActionShutdown, timer.ActionRestart} {
		if err := e.Execute(ctx, action, "msg"); err != nil {
			t.Fatalf("Execute(%s): %v", action, err)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{name: "nil", err: nil},
		{name: "binary missing", err: osexec.ErrNotFound, want: ReasonUnavailable},
		{name: "apple event not permitted", err: errors.New("execution error: Not authorized to send Apple events to System Events. (-1743)"), want: ReasonPermissionDenied},
		{name: "assistive access", err: errors.New("osascript is not allowed assistive access. (1002)"), want: ReasonPermissionDenied},
		{name: "no such file", err: errors.New("fork/exec /usr/bin/osascript: no such file or directory"), want: ReasonUnavailable},
		{name: "anything else", err: errors.New("exit status 1: user canceled"), want: ReasonFailed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v", got)
				}
				return
			}
			var ee *Error
			if !errors.As(got, &ee) {
				t.Fatalf("classify did not return *Error: %v", got)
			}
			if ee.Reason != tt.want {
				t.Fatalf("reason = %s, want %s", ee.Reason, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatal("classified error must wrap the cause")
			}
		})
	}
}

func TestReasonOf(t *testing.T) {
	t.Parallel()
	if got := ReasonOf(&Error{Reason: ReasonPermissionDenied}); got != ReasonPermissionDenied {
		t.Fatalf("ReasonOf = %s", got)
	}
	wrapped := &Error{Reason: ReasonUnavailable, Err: osexec.ErrNotFound}
	if got := ReasonOf(errors.Join(errors.New("fire"), wrapped)); got != ReasonUnavailable {
		t.Fatalf("ReasonOf wrapped = %s", got)
	}
	if got := ReasonOf(errors.New("plain")); got != ReasonFailed {
		t.Fatalf("ReasonOf plain = %s", got)
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()
	e := &Error{Reason: ReasonPermissionDenied, Err: errors.New("boom")}
	if got := e.Error(); got != "permission_denied: boom" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &Error{Reason: ReasonFailed}
	if got := bare.Error(); got != "failed" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestOsascriptUnsupportedAction(t *testing.T) {
	t.Parallel()
	e := newOsascript(Config{}, logx.Nop())
	err := e.Execute(context.Background(), timer.Action("sleep"), "")
	if ReasonOf(err) != ReasonUnavailable {
		t.Fatalf("unsupported action reason = %s, want unavailable", ReasonOf(err))
	}
}
