package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action identifies the OS-level effect a timer performs when it fires.
// The variant set is closed; Popup is the only variant with a payload
// (Timer.Message).
type Action string

const (
	ActionPopup    Action = "popup"
	ActionLock     Action = "lock"
	ActionShutdown Action = "shutdown"
	ActionRestart  Action = "restart"
)

// ErrInvalidInput rejects a timer definition before it is ever constructed
// or persisted (unknown action, empty popup message, out-of-range interval).
var ErrInvalidInput = errors.New("invalid timer input")

// Timer is the unit of scheduling.
//
// TargetTime is the next due occurrence (UTC). It is mutated only by the
// scheduler loop advancing a recurring timer; everything else is fixed at
// creation.
type Timer struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	TargetTime time.Time `json:"targetTime"`
	Recurrence *Rule     `json:"recurrence,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the definition invariants shared by the store and the
// control API. It normalizes nothing; use NormalizeMessage for the popup
// payload before constructing a Timer.
func (t Timer) Validate() error {
	switch t.Action {
	case ActionPopup:
		if strings.TrimSpace(t.Message) == "" {
			return fmt.Errorf("%w: popup timers require a message", ErrInvalidInput)
		}
	case ActionLock, ActionShutdown, ActionRestart:
		// no payload
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, string(t.Action))
	}
	if t.TargetTime.IsZero() {
		return fmt.Errorf("%w: target time is required", ErrInvalidInput)
	}
	if t.Recurrence != nil {
		if err := t.Recurrence.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// NormalizeMessage trims the popup payload the way the store persists it.
func NormalizeMessage(msg string) string { return strings.TrimSpace(msg) }

// ParseAction maps a wire string onto the closed Action set.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionPopup:
		return ActionPopup, nil
	case ActionLock:
		return ActionLock, nil
	case ActionShutdown:
		return ActionShutdown, nil
	case ActionRestart:
		return ActionRestart, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
	}
}
