package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("Open with empty path should fail")
	}
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "timers.json"))
	target := time.Now().Add(time.Hour)

	if _, err := s.Create(timer.ActionPopup, target, nil, "   "); !errors.Is(err, timer.ErrInvalidInput) {
		t.Fatalf("popup without message: err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.Create(timer.Action("sleep"), target, nil, ""); !errors.Is(err, timer.ErrInvalidInput) {
		t.Fatalf("unknown action: err = %v, want ErrInvalidInput", err)
	}
	badRule := &timer.Rule{Preset: timer.PresetEveryNHours, IntervalHours: 48}
	_, err := s.Create(timer.ActionLock, target, badRule, "")
	if !errors.Is(err, timer.ErrInvalidInput) || !errors.Is(err, timer.ErrInvalidRule) {
		t.Fatalf("out-of-range interval: err = %v, want ErrInvalidInput and ErrInvalidRule", err)
	}
	if s.Len() != 0 {
		t.Fatalf("rejected creates must not register timers, got %d", s.Len())
	}
}

func TestCreateAllowsPastTarget(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "timers.json"))

	past := time.Now().Add(-time.Hour)
	created, err := s.Create(timer.ActionLock, past, nil, "")
	if err != nil {
		t.Fatalf("Create with past target: %v", err)
	}
	if !created.TargetTime.Equal(past.UTC()) {
		t.Fatalf("TargetTime = %v, want %v", created.TargetTime, past.UTC())
	}
}

func TestListCreationOrderSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timers.json")
	s := openTestStore(t, path)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rule := &timer.Rule{Preset: timer.PresetEveryNMinutes, IntervalMinutes: 15}
	var want []timer.Timer
	for i, tc := range []struct {
		action  timer.Action
		rule    *timer.Rule
		message string
	}{
		{timer.ActionPopup, nil, "drink water"},
		{timer.ActionLock, rule, ""},
		{timer.ActionShutdown, nil, ""},
	} {
		created, err := s.Create(tc.action, base.Add(time.Duration(i)*time.Hour), tc.rule, tc.message)
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		want = append(want, created)
	}

	reopened := openTestStore(t, path)
	got := reopened.List()
	if len(got) != len(want) {
		t.Fatalf("List after restart: %d timers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].ID, want[i].ID)
		}
		if got[i].Action != want[i].Action || got[i].Message != want[i].Message {
			t.Fatalf("timer %s changed across restart: %+v vs %+v", want[i].ID, got[i], want[i])
		}
		if !got[i].TargetTime.Equal(want[i].TargetTime) {
			t.Fatalf("timer %s target = %v, want %v", want[i].ID, got[i].TargetTime, want[i].TargetTime)
		}
		if (got[i].Recurrence == nil) != (want[i].Recurrence == nil) {
			t.Fatalf("timer %s recurrence lost across restart", want[i].ID)
		}
	}
	if got[1].Recurrence.IntervalMinutes != 15 {
		t.Fatalf("recurrence interval = %d, want 15", got[1].Recurrence.IntervalMinutes)
	}
}

func TestListReturnsRuleCopies(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "timers.json"))
	rule := timer.Rule{Preset: timer.PresetEveryNHours, IntervalHours: 2}
	created, err := s.Create(timer.ActionLock, time.Now().Add(time.Hour), &rule, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.List()[0].Recurrence.IntervalHours = 99
	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Recurrence.IntervalHours != 2 {
		t.Fatal("mutating a listed rule leaked into the store")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "timers.json"))
	created, err := s.Create(timer.ActionRestart, time.Now().Add(time.Hour), nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Cancel("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel unknown id: err = %v, want ErrNotFound", err)
	}
	if s.Len() != 1 {
		t.Fatal("failed cancel must not touch state")
	}
	if err := s.Cancel(created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Cancel(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Cancel: err = %v, want ErrNotFound", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len after cancel = %d, want 0", s.Len())
	}
}

func TestAdvanceOrRetire(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, filepath.Join(t.TempDir(), "timers.json"))
	created, err := s.Create(timer.ActionLock, time.Now().Add(time.Hour), nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := time.Now().Add(2 * time.Hour).UTC()
	if err := s.AdvanceOrRetire(created.ID, &next); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.TargetTime.Equal(next) {
		t.Fatalf("TargetTime = %v, want %v", got.TargetTime, next)
	}

	if err := s.AdvanceOrRetire(created.ID, nil); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if err := s.AdvanceOrRetire(created.ID, &next); !errors.Is(err, ErrNotFound) {
		t.Fatalf("advance retired id: err = %v, want ErrNotFound", err)
	}
}

func TestOpenFailsOpenOnCorruptSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := openTestStore(t, path)
	if s.Len() != 0 {
		t.Fatalf("corrupt snapshot should yield an empty set, got %d", s.Len())
	}
	// The store stays usable and overwrites the bad file on the next write.
	if _, err := s.Create(timer.ActionLock, time.Now().Add(time.Hour), nil, ""); err != nil {
		t.Fatalf("Create after corrupt load: %v", err)
	}
	if openTestStore(t, path).Len() != 1 {
		t.Fatal("snapshot not rewritten after corrupt load")
	}
}

func TestLoadSkipsInvalidRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "timers.json")
	raw := `[
  {"id":"a","action":"lock","targetTime":"2026-05-01T12:00:00Z","createdAt":"2026-05-01T11:00:00Z"},
  {"id":"b","action":"popup","targetTime":"2026-05-01T12:00:00Z","createdAt":"2026-05-01T11:00:00Z"},
  {"id":"a","action":"lock","targetTime":"2026-05-01T13:00:00Z","createdAt":"2026-05-01T11:00:00Z"}
]`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := openTestStore(t, path)
	got := s.List()
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("List = %+v, want only the first valid record", got)
	}
}
