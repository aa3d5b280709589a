package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
)

// auditResponse is the JSON representation of one audit entry.
type auditResponse struct {
	ID          int64  `json:"id"`
	RecordingID string `json:"recording_id"`
	Action      string `json:"action"`
	UserID      *int64 `json:"user_id"`
	IPAddress   string `json:"ip_address,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
}

var validAuditActions = map[string]bool{
	models.AuditUploaded:     true,
	models.AuditDownloaded:   true,
	models.AuditDeleted:      true,
	models.AuditHoldSet:      true,
	models.AuditHoldReleased: true,
}

// handleListAudit returns audit entries, newest first.
// Query params: recording_id, action, user_id, from, to (RFC 3339), limit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AuditListFilter{
		RecordingID: q.Get("recording_id"),
		Action:      q.Get("action"),
	}

	if filter.Action != "" && !validAuditActions[filter.Action] {
		writeError(w, http.StatusBadRequest, "unknown audit action")
		return
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be an integer")
			return
		}
		filter.UserID = &id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = n
	}

	entries, err := s.audit.List(r.Context(), filter)
	if err != nil {
		slog.Error("list audit: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]auditResponse, len(entries))
	for i, e := range entries {
		items[i] = auditResponse{
			ID:          e.ID,
			RecordingID: e.RecordingID,
			Action:      e.Action,
			UserID:      e.UserID,
			IPAddress:   e.IPAddress,
			Metadata:    e.Metadata,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, items)
}
