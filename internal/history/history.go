// Package history records executor invocations (fires) for display in the
// timer list UI. It is observational only: a history failure is logged and
// never affects scheduling.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "lockpilot/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the fire history backend.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FireRecord is one executor invocation. Keep it compact and schema-stable.
type FireRecord struct {
	At      time.Time `json:"at"`
	TimerID string    `json:"timerId"`
	Action  string    `json:"action"`
	Message string    `json:"message,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"tookMs"`
}

// Store is the minimal history API used by the scheduler and control layer.
type Store interface {
	AppendFire(ctx context.Context, rec FireRecord) error
	Recent(ctx context.Context, limit int) ([]FireRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
