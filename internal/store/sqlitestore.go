package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB opens the embedded document store. Collections are modeled as one
// table per named collection (spec.md §6 "Persistence schema (collections)"),
// each row holding an id, a name (unique per collection, per spec's
// invariant "name unique per kind"), a tags column for the tag index, and
// a JSON blob for everything else. This is the narrow embedded stand-in for
// the external document store spec.md §1 excludes from scope.
type DB struct {
	sql *sql.DB
}

// Open creates/opens the sqlite-backed document store at path (use
// ":memory:" for ephemeral/test use).
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &DB{sql: sqlDB}, nil
}

func (db *DB) Close() error { return db.sql.Close() }

// EnsureCollection creates the backing table for a named collection if it
// doesn't already exist, with a unique index on name.
func (db *DB) EnsureCollection(name string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL
	)`, name)
	if _, err := db.sql.Exec(stmt); err != nil {
		return fmt.Errorf("store: create table %s: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %q ON %q(name)`, name+"_name_idx", name)
	if _, err := db.sql.Exec(idx); err != nil {
		return fmt.Errorf("store: create name index on %s: %w", name, err)
	}
	tagsIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q(tags)`, name+"_tags_idx", name)
	if _, err := db.sql.Exec(tagsIdx); err != nil {
		return fmt.Errorf("store: create tags index on %s: %w", name, err)
	}
	return nil
}

// SQLiteDocs is a name-indexed JSON-blob collection backed by one sqlite
// table. T must be JSON-(un)marshalable and expose RowID()/RowName().
type SQLiteDocs[T any] struct {
	db    *DB
	table string
}

// NamedRow is satisfied by any row type the resource engine stores — it
// needs both an id (for RowID-keyed lookups) and a unique name.
type NamedRow interface {
	RowID() string
	RowName() string
	RowTags() string
}

func NewSQLiteDocs[T NamedRow](db *DB, table string) (*SQLiteDocs[T], error) {
	if err := db.EnsureCollection(table); err != nil {
		return nil, err
	}
	return &SQLiteDocs[T]{db: db, table: table}, nil
}

func (c *SQLiteDocs[T]) Get(id string) (T, bool) {
	var zero T
	row := c.db.sql.QueryRow(fmt.Sprintf(`SELECT data FROM %q WHERE id = ?`, c.table), id)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(blob, &out); err != nil {
		return zero, false
	}
	return out, true
}

func (c *SQLiteDocs[T]) GetByName(name string) (T, bool) {
	var zero T
	row := c.db.sql.QueryRow(fmt.Sprintf(`SELECT data FROM %q WHERE name = ?`, c.table), name)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(blob, &out); err != nil {
		return zero, false
	}
	return out, true
}

func (c *SQLiteDocs[T]) List() ([]T, error) {
	rows, err := c.db.sql.Query(fmt.Sprintf(`SELECT data FROM %q`, c.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(blob, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c *SQLiteDocs[T]) Insert(row NamedRow, typed T) error {
	blob, err := json.Marshal(typed)
	if err != nil {
		return err
	}
	_, err = c.db.sql.Exec(fmt.Sprintf(`INSERT INTO %q (id, name, tags, data) VALUES (?, ?, ?, ?)`, c.table),
		row.RowID(), row.RowName(), row.RowTags(), blob)
	return err
}

func (c *SQLiteDocs[T]) Replace(row NamedRow, typed T) error {
	blob, err := json.Marshal(typed)
	if err != nil {
		return err
	}
	res, err := c.db.sql.Exec(fmt.Sprintf(`UPDATE %q SET name = ?, tags = ?, data = ? WHERE id = ?`, c.table),
		row.RowName(), row.RowTags(), blob, row.RowID())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *SQLiteDocs[T]) Delete(id string) error {
	res, err := c.db.sql.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, c.table), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
