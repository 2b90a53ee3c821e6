package postgres

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
)

// SettingsRepo implements SettingsRepository over a key/value table.
type SettingsRepo struct{ db *DB }

// NewSettingsRepo constructs a settings repository.
func NewSettingsRepo(db *DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Load reads all stored keys.
func (r *SettingsRepo) Load(ctx context.Context) (map[string]string, error) {
	const q = `SELECT key, value FROM settings`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Save replaces the snapshot in one transaction. Keys are written in sorted order.
func (r *SettingsRepo) Save(ctx context.Context, values map[string]string) error {
	const del = `DELETE FROM settings`
	const ins = `INSERT INTO settings (key, value) VALUES ($1, $2)`

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, del); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Exec(ctx, ins, k, values[k]); err != nil {
				return err
			}
		}
		return nil
	})
}
