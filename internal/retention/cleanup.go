package retention

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
)

// FileStore is the slice of the storage engine the cleaner needs: removing
// an encrypted file (which also updates the usage tracker).
type FileStore interface {
	Delete(relPath string) error
}

// BatchNotifier receives a summary after each cleanup batch that did work.
type BatchNotifier interface {
	SendCleanupSummary(ctx context.Context, deleted, failed int) error
}

// cleanupBatchSize bounds the work done in one cleanup cycle.
const cleanupBatchSize = 1000

// Nightly window during which the hourly tick actually does work.
const (
	windowStartHour  = 2
	windowEndMinutes = 30
)

// Cleaner deletes expired, non-held recordings. It ticks hourly but only
// works inside a fixed nightly window, processing at most one batch per run.
// Every candidate is handled best-effort: the file is deleted first, the
// metadata row only on file-delete success, then a system audit entry is
// appended. A failure on one candidate never aborts the batch.
type Cleaner struct {
	recordings database.RecordingRepository
	audit      database.AuditRepository
	files      FileStore
	notify     BatchNotifier
	logger     *slog.Logger
	now        func() time.Time

	mu           sync.Mutex
	lastRun      time.Time
	lastDuration time.Duration
	lastBatch    int
}

// NewCleaner creates a retention cleaner.
func NewCleaner(recordings database.RecordingRepository, audit database.AuditRepository, files FileStore, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		recordings: recordings,
		audit:      audit,
		files:      files,
		logger:     logger.With("subsystem", "retention-cleanup"),
		now:        time.Now,
	}
}

// NotifyBatches registers an optional recipient for cleanup summaries. Must
// be called before Run.
func (c *Cleaner) NotifyBatches(n BatchNotifier) {
	c.notify = n
}

// Run ticks hourly until the context is cancelled. Work happens only when a
// tick lands inside the nightly window. Cancellation is honored between
// candidates, never mid-deletion of a single recording.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	c.logger.Info("retention cleanup scheduler started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retention cleanup scheduler stopped")
			return
		case <-ticker.C:
			if !c.inNightlyWindow(c.now()) {
				continue
			}
			deleted, failed := c.RunBatch(ctx)
			if deleted > 0 || failed > 0 {
				c.logger.Info("retention cleanup cycle finished", "deleted", deleted, "failed", failed)
				if c.notify != nil {
					if err := c.notify.SendCleanupSummary(ctx, deleted, failed); err != nil {
						c.logger.Error("sending cleanup summary failed", "error", err)
					}
				}
			}
		}
	}
}

// RunBatch processes one batch of deletion candidates and reports how many
// recordings were deleted and how many failed (to be retried next run).
func (c *Cleaner) RunBatch(ctx context.Context) (deleted, failed int) {
	started := c.now()
	defer func() {
		c.mu.Lock()
		c.lastRun = started
		c.lastDuration = time.Since(started)
		c.lastBatch = deleted + failed
		c.mu.Unlock()
	}()

	candidates, err := c.recordings.ListExpired(ctx, c.now().UTC(), cleanupBatchSize)
	if err != nil {
		c.logger.Error("listing expired recordings failed", "error", err)
		return 0, 0
	}
	if len(candidates) == 0 {
		return 0, 0
	}

	c.logger.Info("retention cleanup starting", "candidates", len(candidates))
	for _, rec := range candidates {
		select {
		case <-ctx.Done():
			c.logger.Info("retention cleanup interrupted", "deleted", deleted)
			return deleted, failed
		default:
		}

		if err := c.deleteOne(ctx, rec); err != nil {
			failed++
			c.logger.Error("failed to delete expired recording",
				"recording_id", rec.ID,
				"path", rec.FilePath,
				"error", err,
			)
			continue
		}
		deleted++
	}
	return deleted, failed
}

// LastBatch reports when the most recent batch ran, how long it took, and
// how many candidates it processed. Zero values before the first run.
func (c *Cleaner) LastBatch() (at time.Time, took time.Duration, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastDuration, c.lastBatch
}

// deleteOne removes a single expired recording: file first, metadata row
// only on file success, then a best-effort system audit entry.
func (c *Cleaner) deleteOne(ctx context.Context, rec models.Recording) error {
	if err := c.files.Delete(rec.FilePath); err != nil {
		return err
	}

	if err := c.recordings.Delete(ctx, rec.ID); err != nil {
		return err
	}

	meta, _ := json.Marshal(map[string]any{
		"file_path":       rec.FilePath,
		"file_size_bytes": rec.FileSizeBytes,
		"retention_until": rec.RetentionUntil.UTC().Format(time.RFC3339),
		"reason":          "retention_expired",
	})
	entry := &models.AuditEntry{
		RecordingID: rec.ID,
		Action:      models.AuditDeleted,
		Metadata:    string(meta),
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		// Audit is subordinate to the delete; the deletion stands.
		c.logger.Error("failed to append cleanup audit entry", "recording_id", rec.ID, "error", err)
	}
	return nil
}

// inNightlyWindow reports whether t falls inside the 02:00-02:30 local
// window where cleanup is allowed to run.
func (c *Cleaner) inNightlyWindow(t time.Time) bool {
	return t.Hour() == windowStartHour && t.Minute() < windowEndMinutes
}
