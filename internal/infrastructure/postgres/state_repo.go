package postgres

import (
	"context"

	"github.com/jacobschulman/stonewatch/internal/db"
)

// StateRepo stores the state blob in the slot_state table, one row per state
// key. Apply migrate.Up before first use.
type StateRepo struct {
	db  *db.DB
	key string
}

func NewStateRepo(d *db.DB, key string) *StateRepo { return &StateRepo{db: d, key: key} }

func (r *StateRepo) Name() string { return "postgres" }

func (r *StateRepo) Get(ctx context.Context) ([]byte, error) {
	var body string
	err := r.db.QueryRow(ctx, `SELECT body FROM slot_state WHERE state_key=$1`, r.key).Scan(&body)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	return []byte(body), nil
}

func (r *StateRepo) Put(ctx context.Context, data []byte) error {
	return r.db.Exec(ctx, `
		INSERT INTO slot_state (state_key, body, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (state_key) DO UPDATE SET body=EXCLUDED.body, updated_at=EXCLUDED.updated_at
	`, r.key, string(data))
}

