package models

import "time"

// Recording is the persisted metadata for one stored call recording.
// Created at most once per call that produces audio; mutated only by
// compliance-hold toggles and deletion.
type Recording struct {
	ID              string
	CallID          string
	FilePath        string // relative to the storage base
	FileSizeBytes   int64
	DurationSeconds float64
	Format          string
	EncryptionKeyID string
	CampaignID      *int64
	AgentID         *int64
	Metadata        string // JSON: agent/lead/campaign names, disposition
	UploadedAt      time.Time
	RetentionUntil  time.Time
	ComplianceHold  bool
}

// Retention policy scopes.
const (
	ScopeAll      = "all"
	ScopeCampaign = "campaign"
	ScopeAgent    = "agent"
)

// RetentionPolicy determines how long recordings are kept. Campaign- and
// agent-scoped policies take priority over the default.
type RetentionPolicy struct {
	ID            int64
	Name          string
	RetentionDays int
	Scope         string // "all" | "campaign" | "agent"
	CampaignID    *int64
	AgentID       *int64
	IsDefault     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DailyUsage is one point-in-time storage snapshot per calendar date.
// Totals are snapshots, added/deleted are per-day counters.
type DailyUsage struct {
	ID                int64
	Date              string // YYYY-MM-DD
	TotalFiles        int64
	TotalBytes        int64
	RecordingsAdded   int64
	RecordingsDeleted int64
	UpdatedAt         time.Time
}

// Audit actions.
const (
	AuditUploaded     = "uploaded"
	AuditDownloaded   = "downloaded"
	AuditDeleted      = "deleted"
	AuditHoldSet      = "hold_set"
	AuditHoldReleased = "hold_released"
)

// AuditEntry is one append-only lifecycle event for a recording. The
// recording ID is deliberately not a foreign key so the trail survives
// deletion of its subject. UserID is nil for system-triggered actions.
type AuditEntry struct {
	ID          int64
	RecordingID string
	Action      string
	UserID      *int64
	IPAddress   string
	Metadata    string // JSON snapshot, e.g. file path/size at time of action
	CreatedAt   time.Time
}
