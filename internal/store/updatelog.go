package store

import (
	"encoding/json"
	"fmt"

	"github.com/komodo-run/komodo/internal/models"
)

// UpdateLog persists the in-progress and finalized Update records stack
// actions and deploys produce (spec.md §4.11), keyed by Update.ID so the
// finalized Save overwrites the in-progress row.
type UpdateLog struct {
	db *DB
}

func NewUpdateLog(db *DB) (*UpdateLog, error) {
	stmt := `CREATE TABLE IF NOT EXISTS updates (
		id TEXT PRIMARY KEY,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		status TEXT NOT NULL,
		data BLOB NOT NULL
	)`
	if _, err := db.sql.Exec(stmt); err != nil {
		return nil, fmt.Errorf("store: create updates table: %w", err)
	}
	return &UpdateLog{db: db}, nil
}

// Save inserts or overwrites an Update row by id.
func (l *UpdateLog) Save(update models.Update) error {
	blob, err := json.Marshal(update)
	if err != nil {
		return err
	}
	_, err = l.db.sql.Exec(
		`INSERT INTO updates (id, target_kind, target_id, status, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		update.ID, string(update.Target.Kind), update.Target.ID, update.Status, blob)
	return err
}

// ListForTarget returns every Update recorded for the given target.
func (l *UpdateLog) ListForTarget(kind models.ResourceKind, id string) ([]models.Update, error) {
	rows, err := l.db.sql.Query(`SELECT data FROM updates WHERE target_kind = ? AND target_id = ?`, string(kind), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Update
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var u models.Update
		if err := json.Unmarshal(blob, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
