package audio

import (
	"testing"
	"time"
)

func TestFormatDerivedSizes(t *testing.T) {
	tests := []struct {
		name       string
		format     Format
		blockAlign int
		byteRate   int
	}{
		{"float stereo 48k", Format{EncodingFloat, 48000, 2, 32}, 8, 384000},
		{"pcm16 stereo 44.1k", Format{EncodingPCM, 44100, 2, 16}, 4, 176400},
		{"pcm24 mono 48k", Format{EncodingPCM, 48000, 1, 24}, 3, 144000},
		{"pcm8 mono 8k", Format{EncodingPCM, 8000, 1, 8}, 1, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.BlockAlign(); got != tt.blockAlign {
				t.Errorf("BlockAlign = %d, want %d", got, tt.blockAlign)
			}
			if got := tt.format.AverageBytesPerSecond(); got != tt.byteRate {
				t.Errorf("AverageBytesPerSecond = %d, want %d", got, tt.byteRate)
			}
			if err := tt.format.Validate(); err != nil {
				t.Errorf("Validate returned error: %v", err)
			}
		})
	}
}

func TestFormatValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		format Format
	}{
		{"zero rate", Format{EncodingPCM, 0, 2, 16}},
		{"zero channels", Format{EncodingPCM, 48000, 0, 16}},
		{"pcm 12 bit", Format{EncodingPCM, 48000, 2, 12}},
		{"float 64 bit", Format{EncodingFloat, 48000, 2, 64}},
		{"unknown encoding", Format{Encoding(2), 48000, 2, 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.format.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	f := Format{EncodingPCM, 1000, 2, 16} // 4000 bytes per second

	if got := f.Duration(4000); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	if got := f.Duration(1000); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
	if got := (Format{}).Duration(1000); got != 0 {
		t.Fatalf("expected zero duration for empty format, got %s", got)
	}
}

func TestOffsetAndTimeMapping(t *testing.T) {
	total := 10 * time.Second
	length := int64(400000)

	if got := OffsetAt(2500*time.Millisecond, total, length); got != 100000 {
		t.Fatalf("expected offset 100000, got %d", got)
	}
	if got := TimeAt(100000, length, total); got != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", got)
	}
	if got := OffsetAt(time.Second, 0, length); got != 0 {
		t.Fatalf("expected 0 for empty duration, got %d", got)
	}
	if got := TimeAt(10, 0, total); got != 0 {
		t.Fatalf("expected 0 for empty length, got %s", got)
	}
}
