package media

import (
	"log/slog"
	"os"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPacketRecorderDropsWhenNotCapturing(t *testing.T) {
	rec := NewPacketRecorder(testLogger(), 0)

	// Before Start: dropped silently.
	rec.Capture(DirectionOutbound, 0, []byte{0xFF})
	if rec.Len() != 0 {
		t.Errorf("Len = %d before Start, want 0", rec.Len())
	}

	rec.Start()
	rec.Capture(DirectionOutbound, 20, []byte{0xFF})
	if rec.Len() != 1 {
		t.Errorf("Len = %d after capture, want 1", rec.Len())
	}

	// After Stop: dropped silently again.
	rec.Stop()
	rec.Capture(DirectionInbound, 40, []byte{0xFF})
	if rec.Len() != 1 {
		t.Errorf("Len = %d after Stop, want 1", rec.Len())
	}
}

func TestPacketRecorderDrainResets(t *testing.T) {
	rec := NewPacketRecorder(testLogger(), 0)
	rec.Start()

	rec.Capture(DirectionOutbound, 0, []byte{0x01, 0x02})
	rec.Capture(DirectionInbound, 20, []byte{0x03})

	packets := rec.Drain()
	if len(packets) != 2 {
		t.Fatalf("Drain returned %d packets, want 2", len(packets))
	}
	if packets[0].Direction != DirectionOutbound || packets[0].ArrivalMS != 0 {
		t.Errorf("packet 0 = %+v, want outbound at 0ms", packets[0])
	}
	if len(packets[0].Payload) != 2 {
		t.Errorf("packet 0 payload length = %d, want 2", len(packets[0].Payload))
	}

	// Buffer is reset; recorder is reusable without a new Start.
	if rec.Len() != 0 {
		t.Errorf("Len = %d after Drain, want 0", rec.Len())
	}
	rec.Capture(DirectionOutbound, 40, []byte{0x04})
	if rec.Len() != 1 {
		t.Errorf("Len = %d after reuse, want 1", rec.Len())
	}
}

func TestPacketRecorderCopiesPayload(t *testing.T) {
	rec := NewPacketRecorder(testLogger(), 0)
	rec.Start()

	buf := []byte{0x10, 0x20}
	rec.Capture(DirectionOutbound, 0, buf)
	buf[0] = 0xFF // caller reuses its read buffer

	packets := rec.Drain()
	if packets[0].Payload[0] != 0x10 {
		t.Error("payload was not copied out of the caller's buffer")
	}
}

func TestPacketRecorderCapContinuesCapture(t *testing.T) {
	rec := NewPacketRecorder(testLogger(), 3)
	rec.Start()

	for i := 0; i < 10; i++ {
		rec.Capture(DirectionOutbound, int64(i*20), []byte{0xFF})
	}

	if rec.Len() != 3 {
		t.Errorf("Len = %d, want cap of 3", rec.Len())
	}
	if rec.Dropped() != 7 {
		t.Errorf("Dropped = %d, want 7", rec.Dropped())
	}
	if !rec.Capturing() {
		t.Error("recorder stopped capturing at cap; capture must continue")
	}

	// Drain resets the warning and frees the buffer for more packets.
	rec.Drain()
	rec.Capture(DirectionOutbound, 500, []byte{0xFF})
	if rec.Len() != 1 {
		t.Errorf("Len = %d after drain, want 1", rec.Len())
	}
}

func TestPacketRecorderConcurrentCapture(t *testing.T) {
	rec := NewPacketRecorder(testLogger(), 0)
	rec.Start()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(dir Direction) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				rec.Capture(dir, int64(i*20), []byte{0xFF})
			}
		}(Direction(g % 2))
	}
	wg.Wait()

	if rec.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", rec.Len())
	}
}
