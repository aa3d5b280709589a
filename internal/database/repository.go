package database

import (
	"context"
	"time"

	"github.com/voicevault/voicevault/internal/database/models"
)

// RecordingRepository manages recording metadata rows.
type RecordingRepository interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id string) (*models.Recording, error)
	GetByCallID(ctx context.Context, callID string) (*models.Recording, error)
	List(ctx context.Context, filter RecordingListFilter) ([]models.Recording, int, error)
	// SetComplianceHold updates the hold flag. Returns the previous value
	// and whether the row exists, so callers can audit only actual changes.
	SetComplianceHold(ctx context.Context, id string, hold bool) (prev bool, found bool, err error)
	Delete(ctx context.Context, id string) error
	// ListExpired returns recordings past their retention timestamp with no
	// compliance hold, oldest-expiring first, capped at limit.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Recording, error)
	// Totals returns the current file count and byte total, used to prime
	// the usage tracker at startup.
	Totals(ctx context.Context) (files, bytes int64, err error)
}

// RecordingListFilter narrows List queries.
type RecordingListFilter struct {
	CampaignID *int64
	AgentID    *int64
	Hold       *bool
	Limit      int
	Offset     int
}

// RetentionPolicyRepository manages retention policies.
type RetentionPolicyRepository interface {
	Create(ctx context.Context, p *models.RetentionPolicy) error
	GetByID(ctx context.Context, id int64) (*models.RetentionPolicy, error)
	List(ctx context.Context) ([]models.RetentionPolicy, error)
	Update(ctx context.Context, p *models.RetentionPolicy) error
	Delete(ctx context.Context, id int64) error
	// FindForCampaign / FindForAgent / FindDefault back the retention
	// priority lookup. Each returns (nil, nil) when no policy matches.
	FindForCampaign(ctx context.Context, campaignID int64) (*models.RetentionPolicy, error)
	FindForAgent(ctx context.Context, agentID int64) (*models.RetentionPolicy, error)
	FindDefault(ctx context.Context) (*models.RetentionPolicy, error)
}

// UsageRepository manages daily storage usage snapshots.
type UsageRepository interface {
	// RecordUsageDelta upserts the row for day with point-in-time totals
	// and increments the added/deleted counters.
	RecordUsageDelta(ctx context.Context, day time.Time, totalFiles, totalBytes, added, deleted int64) error
	History(ctx context.Context, days int) ([]models.DailyUsage, error)
	GetByDate(ctx context.Context, date string) (*models.DailyUsage, error)
	// LifetimeCounters sums the added/deleted counters across all snapshots.
	LifetimeCounters(ctx context.Context) (added, deleted int64, err error)
}

// AuditRepository manages the append-only audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter AuditListFilter) ([]models.AuditEntry, error)
}

// AuditListFilter narrows audit queries.
type AuditListFilter struct {
	RecordingID string
	Action      string
	UserID      *int64
	From        time.Time
	To          time.Time
	Limit       int
}

// MonitorStateRepository persists storage-monitor throttle state (last alert
// time, last daily report date) across restarts.
type MonitorStateRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
