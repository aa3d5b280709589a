package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVHeaderSize is the size of a canonical PCM WAV header.
const WAVHeaderSize = 44

// Validation failures from EncodeWAV. Each is a hard error: no partial
// output is ever produced.
var (
	ErrNoSamples       = errors.New("no samples to encode")
	ErrBadChannelCount = errors.New("channel count must be 1 or 2")
	ErrZeroSampleRate  = errors.New("sample rate must be positive")
)

// ErrNotWAV is returned by DecodeWAV for data that is not a PCM WAV stream.
var ErrNotWAV = errors.New("not a 16-bit PCM WAV stream")

// EncodeWAV serializes 16-bit signed PCM samples into a WAV byte stream.
// Stereo input must already be interleaved (L, R, L, R, ...).
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w, got %d", ErrBadChannelCount, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrZeroSampleRate, sampleRate)
	}

	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf := make([]byte, 0, WAVHeaderSize+dataSize)
	w := bytes.NewBuffer(buf)

	// RIFF chunk.
	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataSize)) //nolint:errcheck
	w.WriteString("WAVE")

	// fmt sub-chunk: PCM, 16-bit.
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))         //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint16(1))          //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint16(channels))   //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint32(sampleRate)) //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint32(byteRate))   //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint16(blockAlign)) //nolint:errcheck
	binary.Write(w, binary.LittleEndian, uint16(16))         //nolint:errcheck

	// data sub-chunk.
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataSize)) //nolint:errcheck
	for _, s := range samples {
		binary.Write(w, binary.LittleEndian, s) //nolint:errcheck
	}

	return w.Bytes(), nil
}

// DecodeWAV parses a 16-bit PCM WAV byte stream back into samples, returning
// the sample data, sample rate, and channel count. Only canonical headers
// produced by EncodeWAV (fmt chunk immediately followed by data) are
// supported; this exists for round-trip verification and duration recovery,
// not as a general WAV parser.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < WAVHeaderSize {
		return nil, 0, 0, fmt.Errorf("%w: %d bytes is shorter than a WAV header", ErrNotWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrNotWAV)
	}

	audioFormat := binary.LittleEndian.Uint16(data[20:22])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if audioFormat != 1 || bitsPerSample != 16 {
		return nil, 0, 0, fmt.Errorf("%w: format %d / %d bits", ErrNotWAV, audioFormat, bitsPerSample)
	}

	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))

	if string(data[36:40]) != "data" {
		return nil, 0, 0, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize%2 != 0 || WAVHeaderSize+dataSize > len(data) {
		return nil, 0, 0, fmt.Errorf("%w: data chunk size %d exceeds stream", ErrNotWAV, dataSize)
	}

	samples := make([]int16, dataSize/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[WAVHeaderSize+i*2:]))
	}
	return samples, sampleRate, channels, nil
}

// ExpectedWAVSize returns the encoded byte size for a sample count without
// performing the encoding. Used by quota projections and tests.
func ExpectedWAVSize(sampleCount int) int {
	return WAVHeaderSize + sampleCount*2
}

// Duration returns the audio duration in seconds for a sample count at the
// given rate and channel layout. Returns 0 when rate or channels is zero.
func Duration(sampleCount, sampleRate, channels int) float64 {
	if sampleRate == 0 || channels == 0 {
		return 0
	}
	return float64(sampleCount) / float64(channels) / float64(sampleRate)
}
