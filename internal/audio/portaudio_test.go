package audio

import (
	"errors"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestReadLoopKeepsReadingAfterOverflow(t *testing.T) {
	readErrs := []error{portaudio.InputOverflowed, nil, errors.New("device unplugged")}
	samples := make([]float32, 2)
	reads := 0
	read := func() error {
		err := readErrs[reads]
		samples[0] = float32(reads)
		reads++
		return err
	}

	var blocks [][]byte
	sink := func(p []byte) {
		blocks = append(blocks, append([]byte(nil), p...))
	}

	err := readLoop(read, samples, sink, make(chan struct{}))
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 delivered blocks, got %d", len(blocks))
	}
	if left, _ := DecodeFrame(Format{Encoding: EncodingFloat, Channels: 2, BitsPerSample: 32}, blocks[1]); left != 1 {
		t.Fatalf("expected second block to carry read 1, got %f", left)
	}
}

func TestReadLoopStopsWhenDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	called := false
	err := readLoop(func() error { called = true; return nil }, make([]float32, 2), func([]byte) {}, done)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if called {
		t.Fatal("expected no read after done")
	}
}
