package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicevault/voicevault/internal/database/models"
)

// policyRequest is the body for creating or updating a retention policy.
type policyRequest struct {
	Name          string `json:"name"`
	RetentionDays int    `json:"retention_days"`
	Scope         string `json:"scope"`
	CampaignID    *int64 `json:"campaign_id"`
	AgentID       *int64 `json:"agent_id"`
	IsDefault     bool   `json:"is_default"`
}

// policyResponse is the JSON representation of a retention policy.
type policyResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	RetentionDays int    `json:"retention_days"`
	Scope         string `json:"scope"`
	CampaignID    *int64 `json:"campaign_id"`
	AgentID       *int64 `json:"agent_id"`
	IsDefault     bool   `json:"is_default"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toPolicyResponse(p *models.RetentionPolicy) policyResponse {
	return policyResponse{
		ID:            p.ID,
		Name:          p.Name,
		RetentionDays: p.RetentionDays,
		Scope:         p.Scope,
		CampaignID:    p.CampaignID,
		AgentID:       p.AgentID,
		IsDefault:     p.IsDefault,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// validatePolicyRequest checks name, day range, and the scope/ID pairing:
// campaign scope requires campaign_id and forbids agent_id, agent scope the
// reverse, and "all" forbids both.
func validatePolicyRequest(req *policyRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if len(req.Name) > 200 {
		return "name must be at most 200 characters"
	}
	if req.RetentionDays < 1 || req.RetentionDays > 3650 {
		return "retention_days must be between 1 and 3650"
	}
	switch req.Scope {
	case models.ScopeAll:
		if req.CampaignID != nil || req.AgentID != nil {
			return "scope 'all' does not take campaign_id or agent_id"
		}
	case models.ScopeCampaign:
		if req.CampaignID == nil {
			return "scope 'campaign' requires campaign_id"
		}
		if req.AgentID != nil {
			return "scope 'campaign' does not take agent_id"
		}
	case models.ScopeAgent:
		if req.AgentID == nil {
			return "scope 'agent' requires agent_id"
		}
		if req.CampaignID != nil {
			return "scope 'agent' does not take campaign_id"
		}
	default:
		return "scope must be one of: all, campaign, agent"
	}
	if req.IsDefault && req.Scope != models.ScopeAll {
		return "only an 'all' scoped policy can be the default"
	}
	return ""
}

// handleListPolicies returns all retention policies.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.policies.List(r.Context())
	if err != nil {
		slog.Error("list policies: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]policyResponse, len(policies))
	for i := range policies {
		items[i] = toPolicyResponse(&policies[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreatePolicy creates a retention policy.
func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validatePolicyRequest(&req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	p := &models.RetentionPolicy{
		Name:          req.Name,
		RetentionDays: req.RetentionDays,
		Scope:         req.Scope,
		CampaignID:    req.CampaignID,
		AgentID:       req.AgentID,
		IsDefault:     req.IsDefault,
	}
	if err := s.policies.Create(r.Context(), p); err != nil {
		slog.Error("create policy: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("retention policy created", "policy_id", p.ID, "name", p.Name,
		"days", p.RetentionDays, "scope", p.Scope)
	writeJSON(w, http.StatusCreated, toPolicyResponse(p))
}

// handleGetPolicy returns a single retention policy.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPolicy(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPolicyResponse(p))
}

// handleUpdatePolicy replaces a retention policy's fields. Existing
// recordings keep the retention timestamp computed at creation.
func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPolicy(w, r)
	if !ok {
		return
	}

	var req policyRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validatePolicyRequest(&req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	p.Name = req.Name
	p.RetentionDays = req.RetentionDays
	p.Scope = req.Scope
	p.CampaignID = req.CampaignID
	p.AgentID = req.AgentID
	p.IsDefault = req.IsDefault
	if err := s.policies.Update(r.Context(), p); err != nil {
		slog.Error("update policy: failed to update", "error", err, "policy_id", p.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toPolicyResponse(p))
}

// handleDeletePolicy removes a retention policy. Recordings created under it
// are unaffected; future recordings fall through to the next match.
func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPolicy(w, r)
	if !ok {
		return
	}

	if err := s.policies.Delete(r.Context(), p.ID); err != nil {
		slog.Error("delete policy: failed to delete", "error", err, "policy_id", p.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("retention policy deleted", "policy_id", p.ID, "name", p.Name)
	w.WriteHeader(http.StatusNoContent)
}

// lookupPolicy fetches the policy named in the URL, writing 400/404 as
// appropriate. The bool result reports whether the caller may proceed.
func (s *Server) lookupPolicy(w http.ResponseWriter, r *http.Request) (*models.RetentionPolicy, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy id")
		return nil, false
	}

	p, err := s.policies.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to query policy", "error", err, "policy_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "retention policy not found")
		return nil, false
	}
	return p, true
}
