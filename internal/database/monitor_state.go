package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// monitorStateRepo implements MonitorStateRepository.
type monitorStateRepo struct {
	db *DB
}

// NewMonitorStateRepository creates a new MonitorStateRepository.
func NewMonitorStateRepository(db *DB) MonitorStateRepository {
	return &monitorStateRepo{db: db}
}

// Get returns the stored value for key, or "" when the key is absent.
func (r *monitorStateRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM monitor_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading monitor state %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (r *monitorStateRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monitor_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing monitor state %q: %w", key, err)
	}
	return nil
}
