package timer

import (
	"errors"
	"fmt"
	"time"
)

// Preset selects a recurrence variant. The set is closed; interval variants
// carry their step width in the matching Interval* field.
type Preset string

const (
	PresetDaily         Preset = "daily"
	PresetWeekdays      Preset = "weekdays"
	PresetEveryNHours   Preset = "every_n_hours"
	PresetEveryNMinutes Preset = "every_n_minutes"
)

// Interval bounds. Values outside these are rejected before a Timer is
// constructed; Next re-checks them defensively.
const (
	MaxIntervalHours   = 24
	MaxIntervalMinutes = 1440
)

// ErrInvalidRule signals a malformed recurrence rule. The store validates
// rules at creation, so the calculator hitting this means a caller bug or a
// tampered persistence file.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Rule describes how a timer's due time advances after it fires.
//
// Daily and Weekdays anchor to the wall-clock time-of-day of the previous
// due time (host local clock): each advance lands on the same hour:minute:second
// on the next qualifying calendar day. EveryNHours/EveryNMinutes anchor to a
// fixed interval from the previous due time, so a recurring timer keeps its
// original phase no matter how long the process was gone.
type Rule struct {
	Preset          Preset `json:"preset"`
	IntervalHours   int    `json:"intervalHours,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
}

func (r Rule) Validate() error {
	switch r.Preset {
	case PresetDaily, PresetWeekdays:
		return nil
	case PresetEveryNHours:
		if r.IntervalHours < 1 || r.IntervalHours > MaxIntervalHours {
			return fmt.Errorf("%w: interval_hours %d out of range 1..%d", ErrInvalidRule, r.IntervalHours, MaxIntervalHours)
		}
		return nil
	case PresetEveryNMinutes:
		if r.IntervalMinutes < 1 || r.IntervalMinutes > MaxIntervalMinutes {
			return fmt.Errorf("%w: interval_minutes %d out of range 1..%d", ErrInvalidRule, r.IntervalMinutes, MaxIntervalMinutes)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidRule, string(r.Preset))
	}
}

// Next computes the first occurrence strictly after now, reachable from
// previousDue by a whole number of rule steps. It always advances at least
// one step, and it never replays missed occurrences: after any gap the
// result is the single next future occurrence.
//
// Pure function: same inputs, same output, no hidden state.
func (r Rule) Next(previousDue, now time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	switch r.Preset {
	case PresetDaily:
		return nextCalendarDay(previousDue, now, false), nil
	case PresetWeekdays:
		return nextCalendarDay(previousDue, now, true), nil
	case PresetEveryNHours:
		return nextInterval(previousDue, now, time.Duration(r.IntervalHours)*time.Hour), nil
	default: // PresetEveryNMinutes, guaranteed by Validate
		return nextInterval(previousDue, now, time.Duration(r.IntervalMinutes)*time.Minute), nil
	}
}

// nextCalendarDay steps one calendar day at a time in the host local clock,
// preserving the wall-clock time-of-day across DST shifts. With skipWeekends
// it lands only on Monday..Friday.
func nextCalendarDay(previousDue, now time.Time, skipWeekends bool) time.Time {
	t := previousDue.In(time.Local)
	for {
		t = t.AddDate(0, 0, 1)
		if skipWeekends {
			for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
				t = t.AddDate(0, 0, 1)
			}
		}
		if t.After(now) {
			return t.UTC()
		}
	}
}

// nextInterval jumps to the first whole multiple of step past now. Anchoring
// on previousDue (not now) keeps the original schedule's phase, so catch-up
// after downtime never accumulates drift.
func nextInterval(previousDue, now time.Time, step time.Duration) time.Time {
	steps := time.Duration(1)
	if previousDue.Before(now) {
		steps = now.Sub(previousDue)/step + 1
	}
	return previousDue.Add(steps * step).UTC()
}
