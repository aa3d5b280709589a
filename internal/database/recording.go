package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voicevault/voicevault/internal/database/models"
)

// recordingRepo implements RecordingRepository.
type recordingRepo struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) RecordingRepository {
	return &recordingRepo{db: db}
}

const recordingColumns = `id, call_id, file_path, file_size_bytes, duration_seconds,
	 format, encryption_key_id, campaign_id, agent_id, metadata,
	 uploaded_at, retention_until, compliance_hold`

// Create inserts a new recording metadata row.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (`+recordingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallID, rec.FilePath, rec.FileSizeBytes, rec.DurationSeconds,
		rec.Format, rec.EncryptionKeyID, rec.CampaignID, rec.AgentID, rec.Metadata,
		rec.UploadedAt, rec.RetentionUntil, rec.ComplianceHold,
	)
	if err != nil {
		return fmt.Errorf("inserting recording: %w", err)
	}
	return nil
}

// GetByID returns a recording by ID, or (nil, nil) if not found.
func (r *recordingRepo) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id,
	))
}

// GetByCallID returns the recording for a call, or (nil, nil) if not found.
func (r *recordingRepo) GetByCallID(ctx context.Context, callID string) (*models.Recording, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE call_id = ?`, callID,
	))
}

// List returns recordings matching the filter, along with the total count.
func (r *recordingRepo) List(ctx context.Context, filter RecordingListFilter) ([]models.Recording, int, error) {
	where := "1=1"
	args := []any{}

	if filter.CampaignID != nil {
		where += " AND campaign_id = ?"
		args = append(args, *filter.CampaignID)
	}
	if filter.AgentID != nil {
		where += " AND agent_id = ?"
		args = append(args, *filter.AgentID)
	}
	if filter.Hold != nil {
		where += " AND compliance_hold = ?"
		args = append(args, *filter.Hold)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting recordings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE ` + where +
		` ORDER BY uploaded_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, *rec)
	}
	return recs, total, rows.Err()
}

// SetComplianceHold updates the hold flag and reports the previous value.
func (r *recordingRepo) SetComplianceHold(ctx context.Context, id string, hold bool) (bool, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("beginning hold transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var prev bool
	err = tx.QueryRowContext(ctx, "SELECT compliance_hold FROM recordings WHERE id = ?", id).Scan(&prev)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("reading compliance hold: %w", err)
	}

	if prev != hold {
		if _, err := tx.ExecContext(ctx, "UPDATE recordings SET compliance_hold = ? WHERE id = ?", hold, id); err != nil {
			return false, false, fmt.Errorf("updating compliance hold: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("committing hold transaction: %w", err)
	}
	return prev, true, nil
}

// Delete removes a recording metadata row.
func (r *recordingRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}

// ListExpired returns deletion candidates: past retention, not held,
// oldest-expiring first.
func (r *recordingRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE retention_until < ? AND compliance_hold = 0
		 ORDER BY retention_until ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Totals returns the aggregate file count and byte total across all rows.
func (r *recordingRepo) Totals(ctx context.Context) (int64, int64, error) {
	var files, bytes int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(file_size_bytes), 0) FROM recordings",
	).Scan(&files, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("reading recording totals: %w", err)
	}
	return files, bytes, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (*models.Recording, error) {
	var rec models.Recording
	err := s.Scan(&rec.ID, &rec.CallID, &rec.FilePath, &rec.FileSizeBytes, &rec.DurationSeconds,
		&rec.Format, &rec.EncryptionKeyID, &rec.CampaignID, &rec.AgentID, &rec.Metadata,
		&rec.UploadedAt, &rec.RetentionUntil, &rec.ComplianceHold)
	if err != nil {
		return nil, fmt.Errorf("scanning recording: %w", err)
	}
	return &rec, nil
}

func (r *recordingRepo) scanOne(row *sql.Row) (*models.Recording, error) {
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
