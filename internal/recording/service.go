package recording

import (
	"context"
	"log/slog"

	"github.com/voicevault/voicevault/internal/database/models"
	"github.com/voicevault/voicevault/internal/media"
)

// Service is the call-facing surface of the recorder. The telephony layer
// acquires a session per call, feeds it events and packets, and hands the
// call back here when it ends. Session bookkeeping and persistence stay
// behind this type so callers never touch the registry and archiver
// separately.
type Service struct {
	sessions *media.SessionRegistry
	archiver *Archiver
	logger   *slog.Logger
}

// NewService creates the recording service.
func NewService(sessions *media.SessionRegistry, archiver *Archiver, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		archiver: archiver,
		logger:   logger.With("subsystem", "recording"),
	}
}

// Session returns the capture session for a call, creating one if needed.
func (s *Service) Session(callID string) *media.RecordingSession {
	return s.sessions.Acquire(callID)
}

// Complete finalizes a call's capture, persists the recording, and releases
// the session. Returns (nil, nil) when the call has no session or produced
// no audio. The session is released even when persistence fails; a capture
// buffer is never kept alive past its call.
func (s *Service) Complete(ctx context.Context, info CallInfo) (*models.Recording, error) {
	sess := s.sessions.Get(info.CallID)
	if sess == nil {
		return nil, nil
	}
	defer s.sessions.Release(info.CallID)

	return s.archiver.Archive(ctx, sess, info)
}

// Abandon discards a call's capture without persisting anything.
func (s *Service) Abandon(callID string) {
	s.sessions.Release(callID)
}

// ActiveCount returns the number of live capture sessions.
func (s *Service) ActiveCount() int {
	return s.sessions.ActiveCount()
}

// DroppedPackets returns total packets dropped at the buffer cap.
func (s *Service) DroppedPackets() int64 {
	return s.sessions.DroppedPackets()
}

// Drain releases all sessions. Used during graceful shutdown.
func (s *Service) Drain() {
	s.sessions.Drain()
}
