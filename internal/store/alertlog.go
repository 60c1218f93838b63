package store

import (
	"encoding/json"
	"fmt"

	"github.com/komodo-run/komodo/internal/models"
)

// AlertLog persists every Open/UpdateAlert/Resolve event the alert engine
// emits (spec.md §4.4). Unlike SQLiteDocs, rows aren't name-unique —
// multiple historical alert records can share a target/variant over
// time — so this keeps its own single-table schema rather than reusing
// the generic collection shape.
type AlertLog struct {
	db *DB
}

// NewAlertLog ensures the alerts table exists and returns a log bound to it.
func NewAlertLog(db *DB) (*AlertLog, error) {
	stmt := `CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		resolved INTEGER NOT NULL,
		data BLOB NOT NULL
	)`
	if _, err := db.sql.Exec(stmt); err != nil {
		return nil, fmt.Errorf("store: create alerts table: %w", err)
	}
	return &AlertLog{db: db}, nil
}

func (l *AlertLog) upsert(alert models.Alert) error {
	blob, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	_, err = l.db.sql.Exec(
		`INSERT INTO alerts (id, target_kind, target_id, resolved, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET resolved = excluded.resolved, data = excluded.data`,
		alert.ID, string(alert.Target.Kind), alert.Target.ID, boolToInt(alert.Resolved), blob)
	return err
}

// Open persists a newly opened alert.
func (l *AlertLog) Open(alert models.Alert) error { return l.upsert(alert) }

// UpdateAlert persists an escalation's new level/payload.
func (l *AlertLog) UpdateAlert(alert models.Alert) error { return l.upsert(alert) }

// Resolve persists the resolved alert record.
func (l *AlertLog) Resolve(alert models.Alert) error { return l.upsert(alert) }

// ListOpen returns every unresolved alert, newest activity first undefined
// (sqlite row order); callers needing ordering should sort by Ts.
func (l *AlertLog) ListOpen() ([]models.Alert, error) {
	rows, err := l.db.sql.Query(`SELECT data FROM alerts WHERE resolved = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var alert models.Alert
		if err := json.Unmarshal(blob, &alert); err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
