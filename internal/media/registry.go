package media

import (
	"log/slog"
	"sync"
)

// SessionRegistry maps call IDs to their recording sessions. The transport
// layer looks sessions up to feed packets; the teardown path looks them up
// to finalize. All methods are safe for concurrent use.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*RecordingSession
	codec    Codec
	mode     MixMode
	logger   *slog.Logger

	// dropped accumulates buffer-cap drops from released sessions so the
	// metric survives session teardown.
	dropped int64
}

// NewSessionRegistry creates an empty registry. New sessions inherit the
// given codec and mix mode.
func NewSessionRegistry(codec Codec, mode MixMode, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*RecordingSession),
		codec:    codec,
		mode:     mode,
		logger:   logger.With("subsystem", "session-registry"),
	}
}

// Acquire returns the session for the given call, creating one if needed.
func (r *SessionRegistry) Acquire(callID string) *RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		return s
	}

	s := NewRecordingSession(callID, r.codec, r.mode, r.logger)
	r.sessions[callID] = s
	r.logger.Debug("recording session acquired", "call_id", callID)
	return s
}

// Get returns the session for the given call, or nil if none exists.
func (r *SessionRegistry) Get(callID string) *RecordingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callID]
}

// Release removes the session for the given call. Safe to call for unknown
// or already-released calls.
func (r *SessionRegistry) Release(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[callID]
	if !ok {
		return
	}
	r.dropped += s.DroppedPackets()
	delete(r.sessions, callID)
	r.logger.Debug("recording session released", "call_id", callID)
}

// ActiveCount returns the number of live sessions.
func (r *SessionRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DroppedPackets returns the total packets dropped at the buffer cap across
// live and released sessions.
func (r *SessionRegistry) DroppedPackets() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.dropped
	for _, s := range r.sessions {
		total += s.DroppedPackets()
	}
	return total
}

// Drain removes all sessions. Used during graceful shutdown.
func (r *SessionRegistry) Drain() {
	r.mu.Lock()
	count := len(r.sessions)
	for _, s := range r.sessions {
		r.dropped += s.DroppedPackets()
	}
	r.sessions = make(map[string]*RecordingSession)
	r.mu.Unlock()

	if count > 0 {
		r.logger.Info("drained all recording sessions", "count", count)
	}
}
