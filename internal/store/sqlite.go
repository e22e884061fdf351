package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/trialwatch/internal/model"
)

// SQLiteStore is a sqlite-backed EventLog and StalenessStore sharing one
// database file.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ EventLog       = (*SQLiteStore)(nil)
	_ StalenessStore = (*SQLiteStore)(nil)
)

// OpenSQLite opens (or creates) the database at path and initializes the
// schema. Empty path falls back to DefaultDBPath.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS guardian_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			snapshot_id TEXT,
			data_delta TEXT,
			output_delta TEXT,
			expected TEXT,
			actual TEXT,
			recommendation TEXT,
			ts TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_guardian_events_entity
			ON guardian_events(entity_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_guardian_events_type
			ON guardian_events(event_type)`,
		`CREATE TABLE IF NOT EXISTS staleness_indicators (
			entity_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record appends a guardian event. Events are never updated or deleted.
func (s *SQLiteStore) Record(ev model.GuardianEvent) error {
	_, err := s.db.Exec(`INSERT INTO guardian_events
		(id, event_type, severity, entity_id, snapshot_id, data_delta, output_delta, expected, actual, recommendation, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.EventType), string(ev.Severity), ev.EntityID, ev.SnapshotID,
		ev.DataDelta, ev.OutputDelta, ev.Expected, ev.Actual, ev.Recommendation,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *SQLiteStore) Query(q EventQuery) ([]model.GuardianEvent, error) {
	var conds []string
	var args []any
	if q.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, q.EntityID)
	}
	if q.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(q.EventType))
	}
	if q.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(q.Severity))
	}

	query := `SELECT id, event_type, severity, entity_id, snapshot_id, data_delta,
		output_delta, expected, actual, recommendation, ts FROM guardian_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, normalizeLimit(q.Limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []model.GuardianEvent
	for rows.Next() {
		var ev model.GuardianEvent
		var eventType, severity, ts string
		if err := rows.Scan(&ev.ID, &eventType, &severity, &ev.EntityID, &ev.SnapshotID,
			&ev.DataDelta, &ev.OutputDelta, &ev.Expected, &ev.Actual, &ev.Recommendation, &ts); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.EventType = model.EventType(eventType)
		ev.Severity = model.Severity(severity)
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("store: parse event timestamp: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Get returns the staleness indicator for an entity, if any.
func (s *SQLiteStore) Get(entityID string) (model.StalenessIndicator, bool, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM staleness_indicators WHERE entity_id = ?`, entityID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.StalenessIndicator{}, false, nil
	}
	if err != nil {
		return model.StalenessIndicator{}, false, fmt.Errorf("store: get indicator: %w", err)
	}

	var ind model.StalenessIndicator
	if err := json.Unmarshal([]byte(payload), &ind); err != nil {
		return model.StalenessIndicator{}, false, fmt.Errorf("store: decode indicator: %w", err)
	}
	return ind, true, nil
}

// Put upserts an entity's staleness indicator.
func (s *SQLiteStore) Put(ind model.StalenessIndicator) error {
	payload, err := json.Marshal(ind)
	if err != nil {
		return fmt.Errorf("store: encode indicator: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO staleness_indicators (entity_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		ind.EntityID, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: put indicator: %w", err)
	}
	return nil
}
