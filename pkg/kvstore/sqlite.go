package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteBackend persists values in an embedded SQLite file. Change
// notifications reach subscribers of the same process only.
type SQLiteBackend struct {
	db  *sqlx.DB
	hub *hub
}

// NewSQLiteBackend prepares the kv_entries table on db.
func NewSQLiteBackend(ctx context.Context, db *sqlx.DB) (*SQLiteBackend, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create kv_entries: %w", err)
	}
	return &SQLiteBackend{db: db, hub: newHub()}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv entry %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set kv entry %s: %w", key, err)
	}
	s.hub.publish(Change{Key: key, NewValue: strPtr(value)})
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.publish(Change{Key: key})
	}
	return nil
}

func (s *SQLiteBackend) Subscribe(ctx context.Context) (<-chan Change, error) {
	return s.hub.subscribe(ctx), nil
}

// Keys lists stored keys beginning with prefix.
func (s *SQLiteBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM kv_entries WHERE key LIKE ? ORDER BY key`, prefix+"%"); err != nil {
		return nil, fmt.Errorf("list kv keys: %w", err)
	}
	return keys, nil
}
