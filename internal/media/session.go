package media

import (
	"fmt"
	"log/slog"
	"sync"
)

// SessionState tracks where a recording session is in its lifecycle.
type SessionState uint8

const (
	StateIdle SessionState = iota
	StateCapturing
	StateStopped
	StateFinalized
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// CallEvent is a call lifecycle transition delivered by the signaling layer.
type CallEvent uint8

const (
	// CallActive fires when the call is answered and media starts flowing.
	CallActive CallEvent = iota
	// CallEnded fires on normal hangup.
	CallEnded
	// CallFailed fires when the call terminates abnormally.
	CallFailed
)

func (e CallEvent) String() string {
	switch e {
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	case CallFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// TransformError is returned by Finalize when decoding, mixing, or encoding
// the captured audio fails. The call itself is unaffected; only its
// recording is lost.
type TransformError struct {
	CallID string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transforming recording for call %s: %v", e.CallID, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// RecordingSession binds a PacketRecorder's lifecycle to call state
// transitions and exposes a single finalize operation producing WAV bytes.
//
// State machine: Idle -> Capturing -> Stopped -> Finalized. Recording must
// be enabled before media is attached; enabling afterwards is ignored. The
// session never fails the call: start/stop problems are logged only, and
// Finalize reports "no recording" as (nil, nil) rather than an error.
type RecordingSession struct {
	mu        sync.Mutex
	callID    string
	codec     Codec
	mode      MixMode
	enabled   bool
	attached  bool
	state     SessionState
	recorder  *PacketRecorder
	finalized bool
	result    []byte
	resultErr error
	logger    *slog.Logger
}

// NewRecordingSession creates an idle session for one call.
func NewRecordingSession(callID string, codec Codec, mode MixMode, logger *slog.Logger) *RecordingSession {
	l := logger.With("subsystem", "recording-session", "call_id", callID)
	return &RecordingSession{
		callID:   callID,
		codec:    codec,
		mode:     mode,
		state:    StateIdle,
		recorder: NewPacketRecorder(l, DefaultMaxPackets),
		logger:   l,
	}
}

// EnableRecording arms the session. Must be called before AttachMedia;
// enabling after media attachment is a logged no-op, not an error.
func (s *RecordingSession) EnableRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		s.logger.Warn("recording enable ignored, media already attached")
		return
	}
	s.enabled = true
}

// Enabled reports whether recording was armed for this session.
func (s *RecordingSession) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// AttachMedia marks the media session as attached. After this point
// EnableRecording is ignored.
func (s *RecordingSession) AttachMedia() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
}

// Mode returns the mix mode the session finalizes with.
func (s *RecordingSession) Mode() MixMode {
	return s.mode
}

// State returns the current lifecycle state.
func (s *RecordingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleCallEvent drives the recorder from call state transitions: Active
// starts capture, Ended and Failed stop it. Invalid transitions are logged
// and swallowed so a recording problem can never fail the call.
func (s *RecordingSession) HandleCallEvent(event CallEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}

	switch event {
	case CallActive:
		if s.state != StateIdle {
			s.logger.Warn("ignoring call active in unexpected state", "state", s.state.String())
			return
		}
		s.recorder.Start()
		s.state = StateCapturing
		s.logger.Debug("capture started")

	case CallEnded, CallFailed:
		if s.state != StateCapturing {
			// Stop before start (e.g. early call failure) is fine.
			if s.state == StateIdle {
				return
			}
			s.logger.Warn("ignoring call teardown in unexpected state", "state", s.state.String())
			return
		}
		s.recorder.Stop()
		s.state = StateStopped
		s.logger.Debug("capture stopped", "packets", s.recorder.Len(), "reason", event.String())
	}
}

// Capture feeds one RTP payload into the session's recorder. Payloads
// arriving while the session is not capturing are dropped silently.
func (s *RecordingSession) Capture(dir Direction, arrivalMS int64, payload []byte) {
	s.recorder.Capture(dir, arrivalMS, payload)
}

// PacketCount returns the number of buffered packets.
func (s *RecordingSession) PacketCount() int {
	return s.recorder.Len()
}

// DroppedPackets returns the number of packets dropped at the buffer cap.
func (s *RecordingSession) DroppedPackets() int64 {
	return s.recorder.Dropped()
}

// Finalize drains the buffer, mixes the two directions, and encodes the WAV
// byte stream. Safe to call multiple times: the transform runs once and the
// outcome, success or failure, is cached. Returns (nil, nil) when recording
// was never enabled or no packets were captured; a *TransformError only when
// the audio transform itself fails.
func (s *RecordingSession) Finalize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return s.result, s.resultErr
	}

	if !s.enabled {
		s.finalized = true
		s.state = StateFinalized
		return nil, nil
	}

	s.recorder.Stop()
	packets := s.recorder.Drain()
	s.finalized = true
	s.state = StateFinalized

	if len(packets) == 0 {
		s.logger.Debug("no packets captured, no recording produced")
		return nil, nil
	}

	samples, err := Mix(packets, s.codec, s.mode)
	if err != nil {
		s.resultErr = &TransformError{CallID: s.callID, Err: err}
		return nil, s.resultErr
	}

	wav, err := EncodeWAV(samples, SampleRate, s.mode.Channels())
	if err != nil {
		s.resultErr = &TransformError{CallID: s.callID, Err: err}
		return nil, s.resultErr
	}

	s.result = wav
	s.logger.Info("recording finalized",
		"packets", len(packets),
		"samples", len(samples),
		"bytes", len(wav),
		"mode", s.mode.String(),
		"duration_s", Duration(len(samples), SampleRate, s.mode.Channels()),
	)
	return wav, nil
}
