package media

import (
	"errors"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := make([]int16, 8000) // 1 second mono
	data, err := EncodeWAV(samples, SampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	if len(data) != WAVHeaderSize+16000 {
		t.Fatalf("len = %d, want %d", len(data), WAVHeaderSize+16000)
	}
	if string(data[0:4]) != "RIFF" {
		t.Error("missing RIFF marker")
	}
	if string(data[8:12]) != "WAVE" {
		t.Error("missing WAVE marker")
	}
	if string(data[36:40]) != "data" {
		t.Error("missing data chunk marker")
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, SampleRate, 1); !errors.Is(err, ErrNoSamples) {
		t.Errorf("empty samples: err = %v, want ErrNoSamples", err)
	}
	if _, err := EncodeWAV([]int16{1}, SampleRate, 3); !errors.Is(err, ErrBadChannelCount) {
		t.Errorf("3 channels: err = %v, want ErrBadChannelCount", err)
	}
	if _, err := EncodeWAV([]int16{1}, SampleRate, 0); !errors.Is(err, ErrBadChannelCount) {
		t.Errorf("0 channels: err = %v, want ErrBadChannelCount", err)
	}
	if _, err := EncodeWAV([]int16{1}, 0, 1); !errors.Is(err, ErrZeroSampleRate) {
		t.Errorf("zero rate: err = %v, want ErrZeroSampleRate", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 7, -9}

	for _, channels := range []int{1, 2} {
		in := samples
		if channels == 2 {
			in = append(in, 12) // even sample count for stereo frames
		}
		data, err := EncodeWAV(in, SampleRate, channels)
		if err != nil {
			t.Fatalf("EncodeWAV(%d ch): %v", channels, err)
		}

		got, rate, ch, err := DecodeWAV(data)
		if err != nil {
			t.Fatalf("DecodeWAV(%d ch): %v", channels, err)
		}
		if rate != SampleRate || ch != channels {
			t.Errorf("decoded rate/channels = %d/%d, want %d/%d", rate, ch, SampleRate, channels)
		}
		if len(got) != len(in) {
			t.Fatalf("decoded %d samples, want %d", len(got), len(in))
		}
		for i := range in {
			if got[i] != in[i] {
				t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
			}
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWAV([]byte("short")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("short data: err = %v, want ErrNotWAV", err)
	}
	junk := make([]byte, 100)
	if _, _, _, err := DecodeWAV(junk); !errors.Is(err, ErrNotWAV) {
		t.Errorf("junk data: err = %v, want ErrNotWAV", err)
	}
}

func TestExpectedWAVSize(t *testing.T) {
	samples := make([]int16, 1234)
	data, err := EncodeWAV(samples, SampleRate, 2)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if got := ExpectedWAVSize(len(samples)); got != len(data) {
		t.Errorf("ExpectedWAVSize = %d, actual encoded size %d", got, len(data))
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		samples, rate, channels int
		want                    float64
	}{
		{8000, 8000, 1, 1},
		{16000, 8000, 2, 1},
		{4000, 8000, 1, 0.5},
		{8000, 0, 1, 0},
		{8000, 8000, 0, 0},
	}
	for _, tt := range tests {
		if got := Duration(tt.samples, tt.rate, tt.channels); got != tt.want {
			t.Errorf("Duration(%d, %d, %d) = %v, want %v", tt.samples, tt.rate, tt.channels, got, tt.want)
		}
	}
}
