package media

import (
	"fmt"
	"sort"
)

// SampleRate is the fixed telephony sample rate. G.711 is always 8 kHz and
// no resampling is performed.
const SampleRate = 8000

// MixMode selects the output channel layout of a mix.
type MixMode uint8

const (
	// MixMono sums both directions into a single channel, saturating to the
	// 16-bit range rather than wrapping.
	MixMono MixMode = iota
	// MixStereo places outbound (agent) audio in the left channel and
	// inbound (customer) audio in the right, with no summing.
	MixStereo
)

func (m MixMode) String() string {
	if m == MixStereo {
		return "stereo"
	}
	return "mono"
}

// Channels returns the channel count of the mode's output.
func (m MixMode) Channels() int {
	if m == MixStereo {
		return 2
	}
	return 1
}

// Mix decodes a call's captured packets and aligns the two directions on a
// shared timeline keyed by arrival timestamp. Time slices where one
// direction has no packet are filled with silence, so both derived channels
// always have equal length. Out-of-order arrival timestamps are handled by
// timeline placement, not append order.
//
// Mono output is the saturated sum of the two channels; stereo output is the
// two channels interleaved. Empty input (either or both directions) yields a
// valid, possibly empty, sample stream.
func Mix(packets []RecordedPacket, codec Codec, mode MixMode) ([]int16, error) {
	outbound, inbound, keys, err := buildTimeline(packets, codec)
	if err != nil {
		return nil, err
	}

	var mixed []int16
	for _, ts := range keys {
		left := outbound[ts]
		right := inbound[ts]

		// Zero-pad the shorter direction so the slice lengths match.
		n := len(left)
		if len(right) > n {
			n = len(right)
		}

		for i := 0; i < n; i++ {
			var l, r int16
			if i < len(left) {
				l = left[i]
			}
			if i < len(right) {
				r = right[i]
			}

			if mode == MixStereo {
				mixed = append(mixed, l, r)
			} else {
				mixed = append(mixed, clampSample(int32(l)+int32(r)))
			}
		}
	}

	return mixed, nil
}

// buildTimeline decodes every packet and buckets its samples by direction
// and arrival timestamp. Packets sharing a timestamp within one direction
// are concatenated in capture order. Returns the sorted union of timestamps.
func buildTimeline(packets []RecordedPacket, codec Codec) (outbound, inbound map[int64][]int16, keys []int64, err error) {
	outbound = make(map[int64][]int16)
	inbound = make(map[int64][]int16)
	seen := make(map[int64]bool)

	for _, pkt := range packets {
		samples, err := DecodePayload(codec, pkt.Payload)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decoding %s packet at %dms: %w", pkt.Direction, pkt.ArrivalMS, err)
		}

		if pkt.Direction == DirectionOutbound {
			outbound[pkt.ArrivalMS] = append(outbound[pkt.ArrivalMS], samples...)
		} else {
			inbound[pkt.ArrivalMS] = append(inbound[pkt.ArrivalMS], samples...)
		}

		if !seen[pkt.ArrivalMS] {
			seen[pkt.ArrivalMS] = true
			keys = append(keys, pkt.ArrivalMS)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return outbound, inbound, keys, nil
}

// clampSample saturates a 32-bit sum to the signed 16-bit range. Wrap-around
// would produce audible artifacts, so overflow clips instead.
func clampSample(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
