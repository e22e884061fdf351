// Package store persists guardian events and staleness indicators. The
// event log is append-only: events are recorded and queried, never mutated.
package store

import (
	"os"
	"path/filepath"

	"github.com/ppiankov/trialwatch/internal/model"
)

// DefaultQueryLimit caps event queries that do not specify a limit.
const DefaultQueryLimit = 100

// EventQuery filters the event log. Zero-value fields match everything.
type EventQuery struct {
	EntityID  string
	EventType model.EventType
	Severity  model.Severity
	Limit     int
}

// EventLog is the append-only guardian event store.
type EventLog interface {
	Record(event model.GuardianEvent) error
	// Query returns matching events, newest first, capped at the query
	// limit (DefaultQueryLimit when unset).
	Query(q EventQuery) ([]model.GuardianEvent, error)
}

// StalenessStore keys staleness indicators by entity.
type StalenessStore interface {
	Get(entityID string) (model.StalenessIndicator, bool, error)
	Put(ind model.StalenessIndicator) error
}

// DefaultDBPath returns the default sqlite database location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trialwatch.db")
	}
	return filepath.Join(home, ".trialwatch", "trialwatch.db")
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}

func matches(ev model.GuardianEvent, q EventQuery) bool {
	if q.EntityID != "" && ev.EntityID != q.EntityID {
		return false
	}
	if q.EventType != "" && ev.EventType != q.EventType {
		return false
	}
	if q.Severity != "" && ev.Severity != q.Severity {
		return false
	}
	return true
}
