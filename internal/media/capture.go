package media

import (
	"log/slog"
	"sync"
)

// Direction tags which leg of the call a packet belongs to.
type Direction uint8

const (
	// DirectionOutbound is audio sent by the agent toward the customer.
	DirectionOutbound Direction = iota
	// DirectionInbound is audio received from the customer.
	DirectionInbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// RecordedPacket is one captured RTP payload with its direction and arrival
// time. Packets are ephemeral: they live in a PacketRecorder buffer for the
// duration of one call and are discarded after mixing.
type RecordedPacket struct {
	Direction Direction
	// ArrivalMS is the monotonic arrival timestamp in milliseconds. Mixing
	// aligns the two directions on this timeline, so it only needs to be
	// consistent within a single call.
	ArrivalMS int64
	Payload   []byte
}

// DefaultMaxPackets caps the per-call buffer. At 50 packets/second per
// direction this covers well over ten minutes of talk time; a pathological
// call cannot grow the buffer without bound.
const DefaultMaxPackets = 100000

// PacketRecorder buffers RTP payloads for a single call. The capture path
// (producer) and the finalize path (consumer) share only this buffer; all
// methods hold the mutex for a swap or append, never for processing.
type PacketRecorder struct {
	mu         sync.Mutex
	capturing  bool
	packets    []RecordedPacket
	maxPackets int
	capWarned  bool
	dropped    int64
	logger     *slog.Logger
}

// NewPacketRecorder creates a recorder with the given buffer cap.
// A maxPackets of zero or less uses DefaultMaxPackets.
func NewPacketRecorder(logger *slog.Logger, maxPackets int) *PacketRecorder {
	if maxPackets <= 0 {
		maxPackets = DefaultMaxPackets
	}
	return &PacketRecorder{
		maxPackets: maxPackets,
		logger:     logger.With("subsystem", "packet-recorder"),
	}
}

// Start transitions the recorder to capturing. Packets arriving before Start
// are dropped silently.
func (r *PacketRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = true
}

// Stop halts capture without discarding the buffer. Packets arriving after
// Stop are dropped silently; this is expected after hangup.
func (r *PacketRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = false
}

// Capturing reports whether the recorder is currently accepting packets.
func (r *PacketRecorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Capture appends a packet to the buffer. Packets arriving while not
// capturing are dropped without error. Once the buffer cap is reached, new
// packets are dropped and a warning is logged exactly once; capture itself
// continues so the call is never disrupted.
func (r *PacketRecorder) Capture(dir Direction, arrivalMS int64, payload []byte) {
	r.mu.Lock()

	if !r.capturing {
		r.mu.Unlock()
		return
	}

	if len(r.packets) >= r.maxPackets {
		r.dropped++
		warn := !r.capWarned
		r.capWarned = true
		count := len(r.packets)
		r.mu.Unlock()

		if warn {
			r.logger.Warn("packet buffer cap reached, dropping further packets",
				"cap", r.maxPackets,
				"buffered", count,
			)
		}
		return
	}

	// Copy the payload: the caller's slice is typically a reused read buffer.
	p := RecordedPacket{
		Direction: dir,
		ArrivalMS: arrivalMS,
		Payload:   append([]byte(nil), payload...),
	}
	r.packets = append(r.packets, p)
	r.mu.Unlock()
}

// Drain atomically removes and returns all buffered packets, resetting the
// recorder for potential reuse. The cap warning state is reset too.
func (r *PacketRecorder) Drain() []RecordedPacket {
	r.mu.Lock()
	defer r.mu.Unlock()

	packets := r.packets
	r.packets = nil
	r.capWarned = false
	return packets
}

// Len returns the number of buffered packets.
func (r *PacketRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

// Dropped returns the total number of packets dropped at the buffer cap
// over the recorder's lifetime.
func (r *PacketRecorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
