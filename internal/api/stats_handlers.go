package api

import (
	"log/slog"
	"net/http"
	"strconv"
)

// usageDay is one daily snapshot in the stats history.
type usageDay struct {
	Date              string `json:"date"`
	TotalFiles        int64  `json:"total_files"`
	TotalBytes        int64  `json:"total_bytes"`
	RecordingsAdded   int64  `json:"recordings_added"`
	RecordingsDeleted int64  `json:"recordings_deleted"`
}

// storageStatsResponse reports live usage against the quota plus recent
// daily history.
type storageStatsResponse struct {
	FileCount       int64      `json:"file_count"`
	UsedBytes       int64      `json:"used_bytes"`
	QuotaBytes      int64      `json:"quota_bytes"`
	QuotaPercentage float64    `json:"quota_percentage"`
	History         []usageDay `json:"history"`
}

// handleStorageStats returns current storage usage and daily history.
// Query params: days (history length, default 30).
func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	history, err := s.usage.History(r.Context(), days)
	if err != nil {
		slog.Error("storage stats: failed to query history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	files, used := s.tracker.Usage()
	resp := storageStatsResponse{
		FileCount:       files,
		UsedBytes:       used,
		QuotaBytes:      s.tracker.QuotaBytes(),
		QuotaPercentage: s.tracker.UsagePercent(),
		History:         make([]usageDay, len(history)),
	}
	for i, h := range history {
		resp.History[i] = usageDay{
			Date:              h.Date,
			TotalFiles:        h.TotalFiles,
			TotalBytes:        h.TotalBytes,
			RecordingsAdded:   h.RecordingsAdded,
			RecordingsDeleted: h.RecordingsDeleted,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
