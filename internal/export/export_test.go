package export

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/rs/zerolog"
)

// 24-bit stereo keeps the block alignment (6) from dividing evenly into
// powers of two, which makes alignment mistakes visible.
var testFormat = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 1000, Channels: 2, BitsPerSample: 24}

func recording(t *testing.T, seconds float64) (*audio.RecordingBuffer, []byte) {
	t.Helper()
	n := int(seconds*float64(testFormat.SampleRate)) * testFormat.BlockAlign()
	payload := make([]byte, n)
	r := rand.New(rand.NewSource(42))
	r.Read(payload)

	buf := audio.NewRecordingBuffer(testFormat, n)
	if _, err := buf.Write(payload); err != nil {
		t.Fatal(err)
	}
	buf.Seal()
	return buf, payload
}

func readPCM(t *testing.T, path string) (*wav.Decoder, []byte) {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { file.Close() })

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		t.Fatalf("exported file is not a valid WAV: %v", dec.Err())
	}
	if err := dec.FwdToPCM(); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(io.LimitReader(dec.PCMChunk, int64(dec.PCMSize)))
	if err != nil {
		t.Fatal(err)
	}
	return dec, data
}

func TestExportWholeRecordingRoundTrip(t *testing.T) {
	buf, payload := recording(t, 2.5)
	path := filepath.Join(t.TempDir(), "whole.wav")

	var chunks []int
	e := New(Config{Logger: zerolog.Nop(), OnChunk: func(n int) { chunks = append(chunks, n) }})
	result, err := e.Export(buf, playback.Range{}, path)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if result.Bytes != int64(len(payload)) || result.Span.Start != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	dec, data := readPCM(t, path)
	if !bytes.Equal(data, payload) {
		t.Fatal("exported payload differs from the recording")
	}
	if int(dec.NumChans) != testFormat.Channels || int(dec.SampleRate) != testFormat.SampleRate || int(dec.BitDepth) != testFormat.BitsPerSample {
		t.Fatalf("unexpected exported format %d ch %d Hz %d bit", dec.NumChans, dec.SampleRate, dec.BitDepth)
	}

	// One-second chunks.
	bps := testFormat.AverageBytesPerSecond()
	want := []int{bps, bps, bps / 2}
	if len(chunks) != len(want) {
		t.Fatalf("expected chunks %v, got %v", want, chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("expected chunks %v, got %v", want, chunks)
		}
	}
}

func TestExportSelectionIsBlockAligned(t *testing.T) {
	buf, payload := recording(t, 3)
	align := int64(testFormat.BlockAlign())
	e := New(Config{Logger: zerolog.Nop()})
	r := rand.New(rand.NewSource(7))
	dir := t.TempDir()

	for i := 0; i < 25; i++ {
		begin := time.Duration(r.Int63n(int64(3 * time.Second)))
		end := begin + time.Duration(r.Int63n(int64(3*time.Second-begin))) + time.Microsecond
		sel := playback.Range{Begin: begin, End: end}

		span := Plan(buf, sel)
		if span.Start%align != 0 || span.Length%align != 0 {
			t.Fatalf("selection %+v: span %+v not aligned to %d", sel, span, align)
		}
		if unaligned := buf.OffsetOf(begin); span.Start > unaligned {
			t.Fatalf("selection %+v: start %d after unaligned offset %d", sel, span.Start, unaligned)
		}

		path := filepath.Join(dir, "clip.wav")
		if _, err := e.Export(buf, sel, path); err != nil {
			t.Fatal(err)
		}
		_, data := readPCMAllowEmpty(t, path)
		if int64(len(data)) != span.Length {
			t.Fatalf("selection %+v: expected %d bytes, got %d", sel, span.Length, len(data))
		}
		if !bytes.Equal(data, payload[span.Start:span.End()]) {
			t.Fatalf("selection %+v: exported bytes differ from the recording", sel)
		}
	}
}

// readPCMAllowEmpty reads the data chunk directly; the decoder rejects
// files without samples.
func readPCMAllowEmpty(t *testing.T, path string) ([]byte, []byte) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < audio.HeaderSize {
		t.Fatalf("file shorter than a header: %d bytes", len(raw))
	}
	return raw[:audio.HeaderSize], raw[audio.HeaderSize:]
}

func TestPlanKnownSelection(t *testing.T) {
	buf, _ := recording(t, 2)

	tests := []struct {
		name string
		sel  playback.Range
		want Span
	}{
		{"empty", playback.Range{}, Span{0, 12000}},
		{"inverted", playback.Range{Begin: time.Second, End: 500 * time.Millisecond}, Span{0, 12000}},
		// 0.5s -> 3000 bytes, 1.2505s -> 7503 rounded down to 7500
		{"half to 1.2505s", playback.Range{Begin: 500 * time.Millisecond, End: 1250500 * time.Microsecond}, Span{3000, 4500}},
		// 0.0001s -> 0.6 bytes rounds down to 0
		{"tiny begin", playback.Range{Begin: 100 * time.Microsecond, End: time.Second}, Span{0, 6000}},
		{"past end", playback.Range{Begin: time.Second, End: 10 * time.Second}, Span{6000, 6000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(buf, tt.sel); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestExportNothingRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.wav")
	e := New(Config{Logger: zerolog.Nop()})

	result, err := e.Export(nil, playback.Range{}, path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != (Result{}) {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created, stat returned %v", err)
	}
}

func TestExportCreateFailure(t *testing.T) {
	buf, _ := recording(t, 1)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{Logger: zerolog.Nop()})
	_, err := e.Export(buf, playback.Range{}, filepath.Join(blocker, "out.wav"))
	if !errors.Is(err, ErrExportWriteFailed) {
		t.Fatalf("expected ErrExportWriteFailed, got %v", err)
	}
}

// limitedFile accepts limit bytes, then fails like a full disk.
type limitedFile struct {
	data  []byte
	pos   int64
	limit int
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if len(f.data)+len(p) > f.limit {
		return 0, errors.New("no space left on device")
	}
	f.data = append(f.data[:f.pos], p...)
	f.pos += int64(len(p))
	return len(p), nil
}

func (f *limitedFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekEnd:
		f.pos = int64(len(f.data)) + offset
	}
	return f.pos, nil
}

func TestWriteToReportsWriteFailure(t *testing.T) {
	buf, _ := recording(t, 3)
	bps := testFormat.AverageBytesPerSecond()
	out := &limitedFile{limit: audio.HeaderSize + 2*bps}

	e := New(Config{Logger: zerolog.Nop()})
	n, err := e.WriteTo(out, buf, playback.Range{})
	if !errors.Is(err, ErrExportWriteFailed) {
		t.Fatalf("expected ErrExportWriteFailed, got %v", err)
	}
	if n != int64(2*bps) {
		t.Fatalf("expected %d bytes written before the failure, got %d", 2*bps, n)
	}
	// What was written stays written.
	if len(out.data) != audio.HeaderSize+2*bps {
		t.Fatalf("expected partial output of %d bytes, got %d", audio.HeaderSize+2*bps, len(out.data))
	}
}
