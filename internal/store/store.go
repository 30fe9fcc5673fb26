// Package store owns the live timer set and its durable snapshot.
//
// The store is the only component that writes the persisted timer file. All
// mutations (create, cancel, advance, retire) happen under one lock together
// with the snapshot write, so readers never observe a half-applied change
// and the on-disk file is always a complete snapshot of some committed
// state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lockpilot/internal/timer"
	logx "lockpilot/pkg/logx"
)

// ErrNotFound reports a cancel/advance against an id that is not live
// (never existed, already fired, or already canceled).
var ErrNotFound = errors.New("timer not found")

// Config configures the persisted timer set.
type Config struct {
	// Path of the snapshot file, e.g. "./timers.json".
	Path string
}

// Store is the in-memory timer collection plus its snapshot file.
type Store struct {
	log logx.Logger

	mu    sync.Mutex
	path  string
	byID  map[string]timer.Timer
	order []string // creation order

	now func() time.Time
}

// Open loads the snapshot (if any) and returns a ready store.
//
// Loading fails open: an absent, unreadable, or corrupt file yields an empty
// set with a warning. A broken snapshot must never prevent startup.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("timers.path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		log:  log,
		path: path,
		byID: map[string]timer.Timer{},
		now:  func() time.Time { return time.Now().UTC() },
	}
	s.loadSnapshot()
	return s, nil
}

// Create validates and registers a new timer, persisting the updated set.
//
// The target time may be in the past: the scheduler treats a past target as
// due on its next tick, which lets callers schedule "now".
func (s *Store) Create(action timer.Action, target time.Time, rule *timer.Rule, message string) (timer.Timer, error) {
	t := timer.Timer{
		ID:         uuid.NewString(),
		Action:     action,
		TargetTime: target.UTC(),
		Message:    timer.NormalizeMessage(message),
		CreatedAt:  s.now(),
	}
	if rule != nil {
		rc := *rule
		t.Recurrence = &rc
	}
	if err := t.Validate(); err != nil {
		return timer.Timer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	s.order = append(s.order, t.ID)
	s.persistLocked()

	s.log.Info("timer created",
		logx.String("id", t.ID),
		logx.String("action", string(t.Action)),
		logx.Time("target", t.TargetTime),
		logx.Bool("recurring", t.Recurrence != nil))
	return t, nil
}

// List returns a snapshot of all live timers in creation order.
func (s *Store) List() []timer.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]timer.Timer, 0, len(s.order))
	for _, id := range s.order {
		t, ok := s.byID[id]
		if !ok {
			continue
		}
		if t.Recurrence != nil {
			rc := *t.Recurrence
			t.Recurrence = &rc
		}
		out = append(out, t)
	}
	return out
}

// Get returns a single timer by id.
func (s *Store) Get(id string) (timer.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return timer.Timer{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Recurrence != nil {
		rc := *t.Recurrence
		t.Recurrence = &rc
	}
	return t, nil
}

// Cancel removes a live timer and persists the updated set. Canceling an
// already-fired or already-canceled id reports ErrNotFound without touching
// state.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.removeLocked(id)
	s.persistLocked()
	s.log.Info("timer canceled", logx.String("id", id))
	return nil
}

// AdvanceOrRetire is the scheduler's post-fire mutation: next non-nil moves
// a recurring timer to its next occurrence, nil retires a one-time timer.
// A concurrent cancel wins: advancing a gone id is a no-op ErrNotFound, so
// recurrence is never re-armed after cancellation.
func (s *Store) AdvanceOrRetire(id string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if next == nil {
		s.removeLocked(id)
	} else {
		t.TargetTime = next.UTC()
		s.byID[id] = t
	}
	s.persistLocked()
	return nil
}

// Len reports the number of live timers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *Store) removeLocked(id string) {
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// persistLocked writes the full ordered set to a temporary file and renames
// it over the snapshot. A crash mid-write leaves the previous snapshot
// intact; a write failure keeps the in-memory state authoritative and the
// next mutation retries.
func (s *Store) persistLocked() {
	timers := make([]timer.Timer, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.byID[id]; ok {
			timers = append(timers, t)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("timer snapshot open failed", logx.String("path", tmp), logx.Err(err))
		return
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(timers); err != nil {
		_ = f.Close()
		s.log.Warn("timer snapshot encode failed", logx.String("path", tmp), logx.Err(err))
		return
	}
	if err := f.Close(); err != nil {
		s.log.Warn("timer snapshot close failed", logx.String("path", tmp), logx.Err(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("timer snapshot rename failed", logx.String("path", s.path), logx.Err(err))
	}
}

func (s *Store) loadSnapshot() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("timer snapshot unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return
	}
	var timers []timer.Timer
	if err := json.Unmarshal(b, &timers); err != nil {
		s.log.Warn("timer snapshot corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return
	}
	for _, t := range timers {
		if err := t.Validate(); err != nil || t.ID == "" {
			s.log.Warn("skipping invalid persisted timer", logx.String("id", t.ID), logx.Err(err))
			continue
		}
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		t.TargetTime = t.TargetTime.UTC()
		s.byID[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	s.log.Info("timer snapshot loaded", logx.String("path", s.path), logx.Int("timers", len(s.order)))
}
