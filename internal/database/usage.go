package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voicevault/voicevault/internal/database/models"
)

// usageRepo implements UsageRepository.
type usageRepo struct {
	db *DB
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db *DB) UsageRepository {
	return &usageRepo{db: db}
}

// RecordUsageDelta upserts the snapshot row for the given day. Totals are
// overwritten with the current point-in-time values; added/deleted counters
// accumulate across the day.
func (r *usageRepo) RecordUsageDelta(ctx context.Context, day time.Time, totalFiles, totalBytes, added, deleted int64) error {
	date := day.Format("2006-01-02")
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_usage (date, total_files, total_bytes, recordings_added, recordings_deleted)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   total_files = excluded.total_files,
		   total_bytes = excluded.total_bytes,
		   recordings_added = recordings_added + excluded.recordings_added,
		   recordings_deleted = recordings_deleted + excluded.recordings_deleted,
		   updated_at = datetime('now')`,
		date, totalFiles, totalBytes, added, deleted,
	)
	if err != nil {
		return fmt.Errorf("upserting daily usage for %s: %w", date, err)
	}
	return nil
}

// History returns the most recent snapshot rows, newest first.
func (r *usageRepo) History(ctx context.Context, days int) ([]models.DailyUsage, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, total_files, total_bytes, recordings_added, recordings_deleted, updated_at
		 FROM daily_usage ORDER BY date DESC LIMIT ?`, days,
	)
	if err != nil {
		return nil, fmt.Errorf("listing usage history: %w", err)
	}
	defer rows.Close()

	var history []models.DailyUsage
	for rows.Next() {
		var u models.DailyUsage
		if err := rows.Scan(&u.ID, &u.Date, &u.TotalFiles, &u.TotalBytes,
			&u.RecordingsAdded, &u.RecordingsDeleted, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		history = append(history, u)
	}
	return history, rows.Err()
}

// LifetimeCounters returns the all-time stored and deleted recording counts
// accumulated across the daily snapshots.
func (r *usageRepo) LifetimeCounters(ctx context.Context) (added, deleted int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(recordings_added), 0), COALESCE(SUM(recordings_deleted), 0) FROM daily_usage`,
	).Scan(&added, &deleted)
	if err != nil {
		return 0, 0, fmt.Errorf("summing usage counters: %w", err)
	}
	return added, deleted, nil
}

// GetByDate returns the snapshot for one date, or (nil, nil) if absent.
func (r *usageRepo) GetByDate(ctx context.Context, date string) (*models.DailyUsage, error) {
	var u models.DailyUsage
	err := r.db.QueryRowContext(ctx,
		`SELECT id, date, total_files, total_bytes, recordings_added, recordings_deleted, updated_at
		 FROM daily_usage WHERE date = ?`, date,
	).Scan(&u.ID, &u.Date, &u.TotalFiles, &u.TotalBytes, &u.RecordingsAdded, &u.RecordingsDeleted, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading daily usage for %s: %w", date, err)
	}
	return &u, nil
}
