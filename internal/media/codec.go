package media

import "fmt"

// Codec identifies the G.711 companding variant of a captured payload.
type Codec uint8

const (
	// CodecPCMU is G.711 u-law (RTP payload type 0).
	CodecPCMU Codec = iota
	// CodecPCMA is G.711 a-law (RTP payload type 8).
	CodecPCMA
)

func (c Codec) String() string {
	switch c {
	case CodecPCMU:
		return "pcmu"
	case CodecPCMA:
		return "pcma"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// G.711 u-law (PCMU) decoding table: maps each u-law byte to a 16-bit linear PCM sample.
var ulawToLinear [256]int16

// G.711 a-law (PCMA) decoding table: maps each a-law byte to a 16-bit linear PCM sample.
var alawToLinear [256]int16

// G.711 u-law encoding table, precomputed for the full 16-bit signed range.
var linearToUlaw [65536]uint8

// G.711 a-law encoding table: maps 16-bit signed sample to an a-law byte.
var linearToAlaw [65536]uint8

func init() {
	// Build u-law decode table.
	for i := 0; i < 256; i++ {
		ulawToLinear[i] = decodeUlaw(uint8(i))
	}
	// Build a-law decode table.
	for i := 0; i < 256; i++ {
		alawToLinear[i] = decodeAlaw(uint8(i))
	}
	// Build u-law encode table.
	for i := -32768; i <= 32767; i++ {
		linearToUlaw[uint16(int16(i))] = encodeUlaw(int16(i))
	}
	// Build a-law encode table.
	for i := -32768; i <= 32767; i++ {
		linearToAlaw[uint16(int16(i))] = encodeAlaw(int16(i))
	}
}

// DecodePayload converts a raw G.711 payload into 16-bit linear PCM samples.
func DecodePayload(c Codec, payload []byte) ([]int16, error) {
	samples := make([]int16, len(payload))
	switch c {
	case CodecPCMU:
		for i, b := range payload {
			samples[i] = ulawToLinear[b]
		}
	case CodecPCMA:
		for i, b := range payload {
			samples[i] = alawToLinear[b]
		}
	default:
		return nil, fmt.Errorf("decoding payload: unsupported codec %d", uint8(c))
	}
	return samples, nil
}

// EncodeSamples converts linear PCM samples back into a G.711 payload.
// The inverse of DecodePayload; used by round-trip tests and tone injection.
func EncodeSamples(c Codec, samples []int16) ([]byte, error) {
	payload := make([]byte, len(samples))
	switch c {
	case CodecPCMU:
		for i, s := range samples {
			payload[i] = linearToUlaw[uint16(s)]
		}
	case CodecPCMA:
		for i, s := range samples {
			payload[i] = linearToAlaw[uint16(s)]
		}
	default:
		return nil, fmt.Errorf("encoding samples: unsupported codec %d", uint8(c))
	}
	return payload, nil
}

// decodeUlaw converts a u-law byte to a 16-bit linear PCM sample.
func decodeUlaw(u uint8) int16 {
	// Complement to obtain the original code.
	u = ^u
	sign := int16(1)
	if u&0x80 != 0 {
		sign = -1
		u &= 0x7F
	}
	exponent := int((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)
	// Reconstruct the 16-bit magnitude: ((8m + 0x84) << e) - 0x84.
	sample := int16((((mantissa << 3) + 0x84) << uint(exponent)) - 0x84)
	return sign * sample
}

// decodeAlaw converts an a-law byte to a 16-bit linear PCM sample.
func decodeAlaw(a uint8) int16 {
	a ^= 0x55
	sign := int16(1)
	if a&0x80 != 0 {
		a &= 0x7F
	} else {
		sign = -1
	}
	exponent := int((a >> 4) & 0x07)
	mantissa := int(a & 0x0F)
	var sample int16
	if exponent == 0 {
		sample = int16(mantissa<<4 | 0x08)
	} else {
		sample = int16((mantissa<<4 | 0x108) << uint(exponent-1))
	}
	return sign * sample
}

// encodeUlaw converts a 16-bit linear PCM sample to a u-law byte.
func encodeUlaw(sample int16) uint8 {
	// Bias and clamp.
	const bias = 0x84
	const clip = 32635

	sign := uint8(0)
	if sample < 0 {
		sign = 0x80
		if sample == -32768 {
			sample = -32767
		}
		sample = -sample
	}
	if sample > clip {
		sample = clip
	}
	sample += bias

	exponent := 7
	mask := int16(0x4000)
	for exponent > 0 {
		if sample&mask != 0 {
			break
		}
		exponent--
		mask >>= 1
	}

	mantissa := (sample >> (uint(exponent) + 3)) & 0x0F
	return ^(sign | uint8(exponent<<4) | uint8(mantissa))
}

// encodeAlaw converts a 16-bit linear PCM sample to an a-law byte.
func encodeAlaw(sample int16) uint8 {
	sign := uint8(0xD5)
	if sample < 0 {
		sign = 0x55
		if sample == -32768 {
			sample = -32767
		}
		sample = -sample
	}

	var exponent int
	var mantissa int
	if sample < 256 {
		exponent = 0
		mantissa = int(sample) >> 4
	} else {
		// Segment e covers magnitudes [256 << (e-1), 512 << (e-1)).
		exp := 1
		bound := int16(512)
		for exp < 7 && sample >= bound {
			exp++
			bound <<= 1
		}
		exponent = exp
		mantissa = (int(sample) >> uint(exponent+3)) & 0x0F
	}

	aval := uint8(exponent<<4 | mantissa)
	return aval ^ sign
}
