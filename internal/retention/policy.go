package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/voicevault/voicevault/internal/database"
)

// Resolver computes the retention-until timestamp for a new recording.
//
// Priority: campaign-scoped policy, then agent-scoped policy, then the
// default policy, then the configured fallback day count. The value is
// computed once at recording creation and never recomputed when policies
// later change.
type Resolver struct {
	policies     database.RetentionPolicyRepository
	fallbackDays int
	logger       *slog.Logger
}

// NewResolver creates a resolver. fallbackDays applies when no policy
// matches; a non-positive value falls back to 90 days.
func NewResolver(policies database.RetentionPolicyRepository, fallbackDays int, logger *slog.Logger) *Resolver {
	if fallbackDays <= 0 {
		fallbackDays = 90
	}
	return &Resolver{
		policies:     policies,
		fallbackDays: fallbackDays,
		logger:       logger.With("subsystem", "retention-resolver"),
	}
}

// ResolveUntil returns uploadedAt plus the applicable retention period.
// Policy lookup failures are logged and treated as "no match" so a database
// hiccup degrades to the fallback period instead of failing the store.
func (r *Resolver) ResolveUntil(ctx context.Context, uploadedAt time.Time, campaignID, agentID *int64) time.Time {
	days := r.resolveDays(ctx, campaignID, agentID)
	return uploadedAt.UTC().AddDate(0, 0, days)
}

func (r *Resolver) resolveDays(ctx context.Context, campaignID, agentID *int64) int {
	if campaignID != nil {
		p, err := r.policies.FindForCampaign(ctx, *campaignID)
		if err != nil {
			r.logger.Error("campaign policy lookup failed", "campaign_id", *campaignID, "error", err)
		} else if p != nil {
			return p.RetentionDays
		}
	}

	if agentID != nil {
		p, err := r.policies.FindForAgent(ctx, *agentID)
		if err != nil {
			r.logger.Error("agent policy lookup failed", "agent_id", *agentID, "error", err)
		} else if p != nil {
			return p.RetentionDays
		}
	}

	p, err := r.policies.FindDefault(ctx)
	if err != nil {
		r.logger.Error("default policy lookup failed", "error", err)
	} else if p != nil {
		return p.RetentionDays
	}

	return r.fallbackDays
}
