package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/api/middleware"
	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
	"github.com/voicevault/voicevault/internal/storage"
)

// maxRecordingUploadSize is the upper limit for uploaded audio (100 MB).
const maxRecordingUploadSize = 100 << 20

// recordingResponse is the JSON representation of a recording.
type recordingResponse struct {
	ID              string  `json:"id"`
	CallID          string  `json:"call_id"`
	FilePath        string  `json:"file_path"`
	FileSizeBytes   int64   `json:"file_size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Format          string  `json:"format"`
	EncryptionKeyID string  `json:"encryption_key_id"`
	CampaignID      *int64  `json:"campaign_id"`
	AgentID         *int64  `json:"agent_id"`
	Metadata        string  `json:"metadata,omitempty"`
	UploadedAt      string  `json:"uploaded_at"`
	RetentionUntil  string  `json:"retention_until"`
	ComplianceHold  bool    `json:"compliance_hold"`
}

func toRecordingResponse(rec *models.Recording) recordingResponse {
	return recordingResponse{
		ID:              rec.ID,
		CallID:          rec.CallID,
		FilePath:        rec.FilePath,
		FileSizeBytes:   rec.FileSizeBytes,
		DurationSeconds: rec.DurationSeconds,
		Format:          rec.Format,
		EncryptionKeyID: rec.EncryptionKeyID,
		CampaignID:      rec.CampaignID,
		AgentID:         rec.AgentID,
		Metadata:        rec.Metadata,
		UploadedAt:      rec.UploadedAt.UTC().Format(time.RFC3339),
		RetentionUntil:  rec.RetentionUntil.UTC().Format(time.RFC3339),
		ComplianceHold:  rec.ComplianceHold,
	}
}

// handleListRecordings returns recordings with pagination and filters.
// Query params: limit, offset, campaign_id, agent_id, hold.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter := database.RecordingListFilter{Limit: pg.Limit, Offset: pg.Offset}
	q := r.URL.Query()
	if v := q.Get("campaign_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "campaign_id must be an integer")
			return
		}
		filter.CampaignID = &id
	}
	if v := q.Get("agent_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "agent_id must be an integer")
			return
		}
		filter.AgentID = &id
	}
	if v := q.Get("hold"); v != "" {
		hold, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "hold must be a boolean")
			return
		}
		filter.Hold = &hold
	}

	recs, total, err := s.recordings.List(r.Context(), filter)
	if err != nil {
		slog.Error("list recordings: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]recordingResponse, len(recs))
	for i := range recs {
		items[i] = toRecordingResponse(&recs[i])
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleUploadRecording ingests a recording captured outside the live
// pipeline via multipart form data. The audio goes through the same
// encrypt-store-resolve path as archived calls, so the quota check applies:
// a rejected upload returns 507 and writes nothing.
// Form fields: file (required), call_id (required), campaign_id, agent_id,
// duration_seconds, metadata.
func (s *Server) handleUploadRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRecordingUploadSize)

	if err := r.ParseMultipartForm(maxRecordingUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	callID := r.FormValue("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	var campaignID, agentID *int64
	if v := r.FormValue("campaign_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "campaign_id must be an integer")
			return
		}
		campaignID = &id
	}
	if v := r.FormValue("agent_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "agent_id must be an integer")
			return
		}
		agentID = &id
	}
	var duration float64
	if v := r.FormValue("duration_seconds"); v != "" {
		duration, err = strconv.ParseFloat(v, 64)
		if err != nil || duration < 0 {
			writeError(w, http.StatusBadRequest, "duration_seconds must be a non-negative number")
			return
		}
	}

	if existing, err := s.recordings.GetByCallID(r.Context(), callID); err != nil {
		slog.Error("upload recording: failed to query call", "error", err, "call_id", callID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "a recording for this call already exists")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if format == "" {
		format = "wav"
	}

	stored, err := s.engine.Store(callID, data, format)
	if err != nil {
		var quotaErr *storage.QuotaExceededError
		if errors.As(err, &quotaErr) {
			writeError(w, http.StatusInsufficientStorage, "storage quota exceeded")
			return
		}
		slog.Error("upload recording: failed to store file", "error", err, "call_id", callID)
		writeError(w, http.StatusInternalServerError, "failed to store recording")
		return
	}

	uploadedAt := time.Now().UTC()
	rec := &models.Recording{
		ID:              uuid.NewString(),
		CallID:          callID,
		FilePath:        stored.RelativePath,
		FileSizeBytes:   stored.SizeBytes,
		DurationSeconds: duration,
		Format:          stored.Format,
		EncryptionKeyID: stored.KeyID,
		CampaignID:      campaignID,
		AgentID:         agentID,
		Metadata:        r.FormValue("metadata"),
		UploadedAt:      uploadedAt,
		RetentionUntil:  s.resolver.ResolveUntil(r.Context(), uploadedAt, campaignID, agentID),
	}
	if err := s.recordings.Create(r.Context(), rec); err != nil {
		// Roll the file back so storage and metadata stay consistent.
		if delErr := s.engine.Delete(stored.RelativePath); delErr != nil {
			slog.Error("orphaned recording file after metadata failure",
				"path", stored.RelativePath, "error", delErr)
		}
		slog.Error("upload recording: failed to insert metadata", "error", err, "call_id", callID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.appendAudit(r, rec.ID, models.AuditUploaded,
		fmt.Sprintf(`{"file_path":%q,"file_size_bytes":%d,"source":"upload"}`, rec.FilePath, rec.FileSizeBytes))

	slog.Info("recording uploaded", "recording_id", rec.ID, "call_id", callID,
		"size_bytes", rec.FileSizeBytes, "user_id", middleware.UserIDFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, toRecordingResponse(rec))
}

// handleGetRecording returns metadata for a single recording.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecording(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

// handleDownloadRecording serves the decrypted audio as an attachment and
// appends a download audit entry. Range requests get a 206 slice so audio
// players can seek without pulling the whole file.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecording(w, r)
	if !ok {
		return
	}

	audio, err := s.engine.Load(rec.FilePath)
	if err != nil {
		slog.Error("download recording: failed to load file", "error", err, "recording_id", rec.ID)
		writeError(w, http.StatusInternalServerError, "failed to load recording audio")
		return
	}
	size := int64(len(audio))

	if rh := r.Header.Get("Range"); rh != "" {
		if start, end, ok := parseRangeHeader(rh, size); ok {
			if start >= size || end >= size || start > end {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
				writeError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
				return
			}
			s.auditDownload(r, rec)
			chunk := audio[start : end+1]
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Type", contentTypeFor(rec.Format))
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
			w.Header().Set("Content-Length", strconv.Itoa(len(chunk)))
			w.WriteHeader(http.StatusPartialContent)
			if _, err := w.Write(chunk); err != nil {
				slog.Debug("download recording: range write aborted", "error", err, "recording_id", rec.ID)
			}
			return
		}
		// An unparseable Range header falls through to a full response.
	}

	s.auditDownload(r, rec)

	filename := fmt.Sprintf("call_%s.%s", rec.CallID, rec.Format)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(rec.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		slog.Debug("download recording: write aborted", "error", err, "recording_id", rec.ID)
	}
}

func (s *Server) auditDownload(r *http.Request, rec *models.Recording) {
	s.appendAudit(r, rec.ID, models.AuditDownloaded,
		fmt.Sprintf(`{"file_path":%q,"file_size_bytes":%d}`, rec.FilePath, rec.FileSizeBytes))
}

// contentTypeFor maps a recording format to its MIME type.
func contentTypeFor(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// parseRangeHeader parses a single-range header of the forms
// "bytes=start-end", "bytes=start-", and "bytes=-suffix". A suffix longer
// than the file clamps to the whole file. Malformed headers report !ok and
// the caller serves a full response instead.
func parseRangeHeader(value string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(value, "bytes=")
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}

	if parts[0] == "" {
		// Suffix range: the last N bytes.
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		return start, size - 1, true
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if parts[1] == "" {
		// Open-ended range: from start to the end of the file.
		return start, size - 1, true
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// handleDeleteRecording removes a recording's file and metadata. Recordings
// under compliance hold cannot be deleted.
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecording(w, r)
	if !ok {
		return
	}
	if rec.ComplianceHold {
		writeError(w, http.StatusConflict, "recording is under compliance hold")
		return
	}

	if err := s.engine.Delete(rec.FilePath); err != nil {
		slog.Error("delete recording: failed to remove file", "error", err, "recording_id", rec.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete recording file")
		return
	}
	if err := s.recordings.Delete(r.Context(), rec.ID); err != nil {
		slog.Error("delete recording: failed to remove metadata", "error", err, "recording_id", rec.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.appendAudit(r, rec.ID, models.AuditDeleted,
		fmt.Sprintf(`{"file_path":%q,"file_size_bytes":%d,"reason":"manual"}`, rec.FilePath, rec.FileSizeBytes))

	slog.Info("recording deleted", "recording_id", rec.ID, "call_id", rec.CallID,
		"user_id", middleware.UserIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// holdRequest is the body for PUT /recordings/{id}/hold.
type holdRequest struct {
	Hold *bool `json:"hold"`
}

// handleSetHold toggles the compliance hold flag. Only an actual change
// produces an audit entry.
func (s *Server) handleSetHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Hold == nil {
		writeError(w, http.StatusBadRequest, "hold is required")
		return
	}

	id := chi.URLParam(r, "id")
	prev, found, err := s.recordings.SetComplianceHold(r.Context(), id, *req.Hold)
	if err != nil {
		slog.Error("set hold: failed to update", "error", err, "recording_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}

	if prev != *req.Hold {
		action := models.AuditHoldSet
		if !*req.Hold {
			action = models.AuditHoldReleased
		}
		s.appendAudit(r, id, action, fmt.Sprintf(`{"old":%t,"new":%t}`, prev, *req.Hold))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"hold": *req.Hold})
}

// lookupRecording fetches the recording named in the URL, writing 404 when
// it does not exist. The bool result reports whether the caller may proceed.
func (s *Server) lookupRecording(w http.ResponseWriter, r *http.Request) (*models.Recording, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.recordings.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to query recording", "error", err, "recording_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "recording not found")
		return nil, false
	}
	return rec, true
}

// appendAudit writes one audit entry for a user-triggered action. Audit is
// subordinate to the action itself; failures are logged, never surfaced.
func (s *Server) appendAudit(r *http.Request, recordingID, action, metadata string) {
	entry := &models.AuditEntry{
		RecordingID: recordingID,
		Action:      action,
		IPAddress:   clientIP(r),
		Metadata:    metadata,
	}
	if userID := middleware.UserIDFromContext(r.Context()); userID != 0 {
		entry.UserID = &userID
	}
	if err := s.audit.Append(r.Context(), entry); err != nil {
		slog.Error("failed to append audit entry", "error", err, "recording_id", recordingID, "action", action)
	}
}

// clientIP returns the request's client IP without the port. RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
