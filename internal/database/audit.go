package database

import (
	"context"
	"fmt"

	"github.com/voicevault/voicevault/internal/database/models"
)

// auditRepo implements AuditRepository.
type auditRepo struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) AuditRepository {
	return &auditRepo{db: db}
}

// Append inserts one audit entry. The trail is append-only: there is no
// update or delete operation on this repository.
func (r *auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (recording_id, action, user_id, ip_address, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.RecordingID, entry.Action, entry.UserID, entry.IPAddress, entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *auditRepo) List(ctx context.Context, filter AuditListFilter) ([]models.AuditEntry, error) {
	where := "1=1"
	args := []any{}

	if filter.RecordingID != "" {
		where += " AND recording_id = ?"
		args = append(args, filter.RecordingID)
	}
	if filter.Action != "" {
		where += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if !filter.From.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		where += " AND created_at <= ?"
		args = append(args, filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recording_id, action, user_id, ip_address, metadata, created_at
		 FROM audit_log WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.RecordingID, &e.Action, &e.UserID, &e.IPAddress, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
