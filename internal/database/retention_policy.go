package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voicevault/voicevault/internal/database/models"
)

// retentionPolicyRepo implements RetentionPolicyRepository.
type retentionPolicyRepo struct {
	db *DB
}

// NewRetentionPolicyRepository creates a new RetentionPolicyRepository.
func NewRetentionPolicyRepository(db *DB) RetentionPolicyRepository {
	return &retentionPolicyRepo{db: db}
}

const policyColumns = `id, name, retention_days, scope, campaign_id, agent_id,
	 is_default, created_at, updated_at`

// Create inserts a new policy. When the policy is flagged default, any
// previous default is cleared in the same transaction so at most one
// default exists at any time.
func (r *retentionPolicyRepo) Create(ctx context.Context, p *models.RetentionPolicy) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning policy transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx, "UPDATE retention_policies SET is_default = 0 WHERE is_default = 1"); err != nil {
			return fmt.Errorf("clearing previous default policy: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO retention_policies (name, retention_days, scope, campaign_id, agent_id, is_default)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.RetentionDays, p.Scope, p.CampaignID, p.AgentID, p.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("inserting retention policy: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	p.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing policy transaction: %w", err)
	}
	return nil
}

// GetByID returns a policy by ID, or (nil, nil) if not found.
func (r *retentionPolicyRepo) GetByID(ctx context.Context, id int64) (*models.RetentionPolicy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM retention_policies WHERE id = ?`, id,
	))
}

// List returns all policies, default first, then by name.
func (r *retentionPolicyRepo) List(ctx context.Context) ([]models.RetentionPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM retention_policies ORDER BY is_default DESC, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing retention policies: %w", err)
	}
	defer rows.Close()

	var policies []models.RetentionPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// Update modifies an existing policy, preserving the single-default invariant.
func (r *retentionPolicyRepo) Update(ctx context.Context, p *models.RetentionPolicy) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning policy transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx, "UPDATE retention_policies SET is_default = 0 WHERE is_default = 1 AND id != ?", p.ID); err != nil {
			return fmt.Errorf("clearing previous default policy: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE retention_policies SET name = ?, retention_days = ?, scope = ?,
		 campaign_id = ?, agent_id = ?, is_default = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		p.Name, p.RetentionDays, p.Scope, p.CampaignID, p.AgentID, p.IsDefault, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating retention policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing policy transaction: %w", err)
	}
	return nil
}

// Delete removes a policy.
func (r *retentionPolicyRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM retention_policies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting retention policy: %w", err)
	}
	return nil
}

// FindForCampaign returns the campaign-scoped policy for the given campaign,
// or (nil, nil) if none exists.
func (r *retentionPolicyRepo) FindForCampaign(ctx context.Context, campaignID int64) (*models.RetentionPolicy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM retention_policies
		 WHERE scope = ? AND campaign_id = ? LIMIT 1`, models.ScopeCampaign, campaignID,
	))
}

// FindForAgent returns the agent-scoped policy for the given agent, or
// (nil, nil) if none exists.
func (r *retentionPolicyRepo) FindForAgent(ctx context.Context, agentID int64) (*models.RetentionPolicy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM retention_policies
		 WHERE scope = ? AND agent_id = ? LIMIT 1`, models.ScopeAgent, agentID,
	))
}

// FindDefault returns the policy flagged as default, or (nil, nil).
func (r *retentionPolicyRepo) FindDefault(ctx context.Context) (*models.RetentionPolicy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM retention_policies WHERE is_default = 1 LIMIT 1`,
	))
}

func scanPolicy(s scanner) (*models.RetentionPolicy, error) {
	var p models.RetentionPolicy
	err := s.Scan(&p.ID, &p.Name, &p.RetentionDays, &p.Scope, &p.CampaignID, &p.AgentID,
		&p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning retention policy: %w", err)
	}
	return &p, nil
}

func (r *retentionPolicyRepo) scanOne(row *sql.Row) (*models.RetentionPolicy, error) {
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
