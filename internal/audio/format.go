package audio

import (
	"fmt"
	"time"
)

// Encoding is the WAVE format tag of the sample data.
type Encoding uint16

const (
	EncodingPCM   Encoding = 1
	EncodingFloat Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingFloat:
		return "float"
	default:
		return fmt.Sprintf("encoding(%d)", uint16(e))
	}
}

// Format describes interleaved sample data as delivered by a capture device.
type Format struct {
	Encoding      Encoding
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BlockAlign returns the size in bytes of one sample-frame (all channels, one instant).
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// AverageBytesPerSecond returns the byte rate of the stream.
func (f Format) AverageBytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate reports whether the format can be stored and decoded.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	switch f.Encoding {
	case EncodingPCM:
		switch f.BitsPerSample {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("unsupported PCM bit depth: %d", f.BitsPerSample)
		}
	case EncodingFloat:
		if f.BitsPerSample != 32 {
			return fmt.Errorf("unsupported float bit depth: %d", f.BitsPerSample)
		}
	default:
		return fmt.Errorf("unsupported encoding: %s", f.Encoding)
	}
	return nil
}

// Duration converts a byte count of this format into playing time.
func (f Format) Duration(n int64) time.Duration {
	rate := f.AverageBytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) * float64(time.Second) / float64(rate))
}

func (f Format) String() string {
	return fmt.Sprintf("%s %d-bit %dch %dHz", f.Encoding, f.BitsPerSample, f.Channels, f.SampleRate)
}

// OffsetAt maps t onto a byte offset proportionally to total playing time,
// the way a constant-bitrate stream is addressed.
func OffsetAt(t, total time.Duration, length int64) int64 {
	if total <= 0 || length <= 0 {
		return 0
	}
	return int64(float64(t) * float64(length) / float64(total))
}

// TimeAt is the inverse of OffsetAt.
func TimeAt(offset, length int64, total time.Duration) time.Duration {
	if length <= 0 {
		return 0
	}
	return time.Duration(float64(offset) * float64(total) / float64(length))
}
