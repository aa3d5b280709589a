package recording

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
	"github.com/voicevault/voicevault/internal/media"
	"github.com/voicevault/voicevault/internal/retention"
	"github.com/voicevault/voicevault/internal/storage"
)

// CallInfo carries the call context an archived recording is tagged with.
type CallInfo struct {
	CallID     string
	CampaignID *int64
	AgentID    *int64
	Metadata   string // JSON blob: agent/lead/campaign names, disposition
}

// Archiver turns a finalized recording session into a durable recording:
// encrypt and store the WAV, resolve the retention period, create the
// metadata row, and append the upload audit entry.
type Archiver struct {
	engine     *storage.Engine
	recordings database.RecordingRepository
	audit      database.AuditRepository
	resolver   *retention.Resolver
	logger     *slog.Logger
	now        func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(engine *storage.Engine, recordings database.RecordingRepository,
	audit database.AuditRepository, resolver *retention.Resolver, logger *slog.Logger) *Archiver {
	return &Archiver{
		engine:     engine,
		recordings: recordings,
		audit:      audit,
		resolver:   resolver,
		logger:     logger.With("subsystem", "archiver"),
		now:        time.Now,
	}
}

// Archive finalizes the session and persists the result. Returns (nil, nil)
// when the session produced no audio. On a quota violation the typed
// *storage.QuotaExceededError passes through and nothing is written.
func (a *Archiver) Archive(ctx context.Context, session *media.RecordingSession, info CallInfo) (*models.Recording, error) {
	wav, err := session.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalizing recording for call %s: %w", info.CallID, err)
	}
	if wav == nil {
		return nil, nil
	}

	stored, err := a.engine.Store(info.CallID, wav, "wav")
	if err != nil {
		return nil, err
	}

	uploadedAt := a.now().UTC()
	sampleCount := (len(wav) - media.WAVHeaderSize) / 2
	rec := &models.Recording{
		ID:              uuid.NewString(),
		CallID:          info.CallID,
		FilePath:        stored.RelativePath,
		FileSizeBytes:   stored.SizeBytes,
		DurationSeconds: media.Duration(sampleCount, media.SampleRate, session.Mode().Channels()),
		Format:          stored.Format,
		EncryptionKeyID: stored.KeyID,
		CampaignID:      info.CampaignID,
		AgentID:         info.AgentID,
		Metadata:        info.Metadata,
		UploadedAt:      uploadedAt,
		RetentionUntil:  a.resolver.ResolveUntil(ctx, uploadedAt, info.CampaignID, info.AgentID),
	}

	if err := a.recordings.Create(ctx, rec); err != nil {
		// Roll the file back so storage and metadata stay consistent.
		if delErr := a.engine.Delete(stored.RelativePath); delErr != nil {
			a.logger.Error("orphaned recording file after metadata failure",
				"path", stored.RelativePath, "error", delErr)
		}
		return nil, fmt.Errorf("creating recording metadata for call %s: %w", info.CallID, err)
	}

	a.auditUpload(ctx, rec)

	a.logger.Info("recording archived",
		"recording_id", rec.ID,
		"call_id", rec.CallID,
		"path", rec.FilePath,
		"size_bytes", rec.FileSizeBytes,
		"duration_s", rec.DurationSeconds,
		"retention_until", rec.RetentionUntil,
	)
	return rec, nil
}

// auditUpload appends the upload audit entry. Audit is subordinate to the
// stored recording; failures are logged, never propagated.
func (a *Archiver) auditUpload(ctx context.Context, rec *models.Recording) {
	meta := fmt.Sprintf(`{"file_path":%q,"file_size_bytes":%d}`, rec.FilePath, rec.FileSizeBytes)
	entry := &models.AuditEntry{
		RecordingID: rec.ID,
		Action:      models.AuditUploaded,
		Metadata:    meta,
	}
	if err := a.audit.Append(ctx, entry); err != nil {
		a.logger.Error("failed to append upload audit entry", "recording_id", rec.ID, "error", err)
	}
}
