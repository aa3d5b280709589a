package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SnapshotStore persists daily usage rows. Persistence is best-effort: the
// tracker logs failures and never propagates them to the caller.
type SnapshotStore interface {
	// RecordUsageDelta upserts the row for the given day with the current
	// point-in-time totals and increments the added/deleted counters.
	RecordUsageDelta(ctx context.Context, day time.Time, totalFiles, totalBytes, added, deleted int64) error
}

// QuotaExceededError is returned when a store would push tracked usage past
// the configured quota. The operation is rejected with no partial write.
type QuotaExceededError struct {
	UsedBytes      int64
	QuotaBytes     int64
	CandidateBytes int64
}

func (e *QuotaExceededError) Error() string {
	const gb = 1024 * 1024 * 1024
	return fmt.Sprintf("storage quota exceeded: %.2f GB used of %.2f GB quota (candidate %d bytes)",
		float64(e.UsedBytes)/gb, float64(e.QuotaBytes)/gb, e.CandidateBytes)
}

// Tracker is the single source of truth for storage usage. The quota check
// and the counter update happen under one mutex, so concurrent stores cannot
// race past the quota, and the background cleanup loop updates the same
// counters rather than keeping its own.
type Tracker struct {
	mu    sync.Mutex
	files int64
	bytes int64
	quota int64

	snapshots SnapshotStore // may be nil when persistence is disabled
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewTracker creates a tracker with the given quota. Counters start at zero;
// call Prime with totals recovered from the metadata store.
func NewTracker(quotaBytes int64, snapshots SnapshotStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		quota:     quotaBytes,
		snapshots: snapshots,
		logger:    logger.With("subsystem", "usage-tracker"),
	}
}

// Prime sets the counters to totals recovered at startup.
func (t *Tracker) Prime(files, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = files
	t.bytes = bytes
}

// Reserve checks the quota and provisionally adds a candidate file to the
// counters in one atomic step. On rejection nothing changes and a
// *QuotaExceededError is returned. A successful reservation must be followed
// by Commit or Release.
func (t *Tracker) Reserve(size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bytes+size > t.quota {
		return &QuotaExceededError{
			UsedBytes:      t.bytes,
			QuotaBytes:     t.quota,
			CandidateBytes: size,
		}
	}
	t.files++
	t.bytes += size
	return nil
}

// Release undoes a reservation after a failed write.
func (t *Tracker) Release(size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files--
	t.bytes -= size
}

// Commit finalizes a reservation and records the addition in the daily
// snapshot (best-effort, asynchronous).
func (t *Tracker) Commit(size int64) {
	t.mu.Lock()
	files, bytes := t.files, t.bytes
	t.mu.Unlock()

	t.persistDelta(files, bytes, 1, 0)
}

// RecordDelete subtracts a deleted file from the counters and records the
// deletion in the daily snapshot (best-effort, asynchronous).
func (t *Tracker) RecordDelete(size int64) {
	t.mu.Lock()
	t.files--
	t.bytes -= size
	files, bytes := t.files, t.bytes
	t.mu.Unlock()

	t.persistDelta(files, bytes, 0, 1)
}

// Usage returns the current tracked file count and byte total.
func (t *Tracker) Usage() (files, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files, t.bytes
}

// QuotaBytes returns the configured quota.
func (t *Tracker) QuotaBytes() int64 {
	return t.quota
}

// UsagePercent returns tracked bytes as a percentage of the quota.
func (t *Tracker) UsagePercent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quota == 0 {
		return 0
	}
	return float64(t.bytes) / float64(t.quota) * 100
}

// Flush waits for in-flight snapshot writes. Used by shutdown and tests.
func (t *Tracker) Flush() {
	t.wg.Wait()
}

// persistDelta upserts the daily snapshot row in the background. A failure
// here never unwinds the store or delete it rides on.
func (t *Tracker) persistDelta(totalFiles, totalBytes, added, deleted int64) {
	if t.snapshots == nil {
		return
	}

	day := time.Now()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := t.snapshots.RecordUsageDelta(ctx, day, totalFiles, totalBytes, added, deleted); err != nil {
			t.logger.Error("failed to persist usage snapshot",
				"error", err,
				"total_files", totalFiles,
				"total_bytes", totalBytes,
			)
		}
	}()
}
