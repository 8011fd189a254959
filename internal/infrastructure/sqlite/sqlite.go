// Package sqlite keeps state blobs in a local SQLite file, for runs on a
// single machine without any remote store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jacobschulman/stonewatch/internal/internaltypes"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS slot_state (
	state_key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

type Store struct {
	db  *sql.DB
	key string
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path, key string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, key: key}, nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Get(ctx context.Context) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM slot_state WHERE state_key = ?`, s.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internaltypes.ErrNotFound
	}
	return body, err
}

func (s *Store) Put(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_state (state_key, body, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(state_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, s.key, data)
	return err
}

func (s *Store) Close() error { return s.db.Close() }
