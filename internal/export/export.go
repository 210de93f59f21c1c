// Package export writes a recording, or the selected part of it, to a WAV
// file with the recording's own format.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/rs/zerolog"
)

// ErrExportWriteFailed is returned when the output file cannot be written.
// A partially written file is left in place.
var ErrExportWriteFailed = errors.New("export write failed")

// Span is a byte range of the sample data, [Start, Start+Length).
type Span struct {
	Start  int64
	Length int64
}

// End returns the exclusive end offset.
func (s Span) End() int64 {
	return s.Start + s.Length
}

// Plan computes the byte range to export for sel. An empty selection
// exports everything; otherwise both ends are mapped proportionally onto
// the sample data and rounded down to a whole sample-frame.
func Plan(buf *audio.RecordingBuffer, sel playback.Range) Span {
	length := buf.Len()
	if sel.Empty() {
		return Span{Start: 0, Length: length}
	}

	align := int64(buf.Format().BlockAlign())
	start := alignDown(clamp(buf.OffsetOf(sel.Begin), length), align)
	end := alignDown(clamp(buf.OffsetOf(sel.End), length), align)
	if end < start {
		end = start
	}
	return Span{Start: start, Length: end - start}
}

func clamp(off, length int64) int64 {
	if off < 0 {
		return 0
	}
	if off > length {
		return length
	}
	return off
}

func alignDown(off, align int64) int64 {
	if align <= 0 {
		return off
	}
	return off - off%align
}

// Result describes a finished export.
type Result struct {
	Path  string
	Span  Span
	Bytes int64
}

type Config struct {
	Logger zerolog.Logger
	// OnChunk, when set, is called with the size of every chunk written.
	OnChunk func(n int)
}

// Exporter copies recordings to WAV files.
type Exporter struct {
	log     zerolog.Logger
	onChunk func(n int)
}

func New(cfg Config) *Exporter {
	return &Exporter{log: cfg.Logger, onChunk: cfg.OnChunk}
}

// Export writes the planned part of buf to path in one-second chunks
// through an independent read cursor, then corrects the header. A nil
// buffer means nothing was recorded; the call does nothing and returns a
// zero Result.
func (e *Exporter) Export(buf *audio.RecordingBuffer, sel playback.Range, path string) (Result, error) {
	if buf == nil {
		return Result{}, nil
	}

	span := Plan(buf, sel)
	result := Result{Path: path, Span: span}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return result, fmt.Errorf("%w: %v", ErrExportWriteFailed, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrExportWriteFailed, err)
	}

	n, err := e.write(file, buf, span)
	result.Bytes = n
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrExportWriteFailed, cerr)
	}
	if err != nil {
		e.log.Error().Err(err).Str("path", path).Int64("written", n).Msg("Export failed")
		return result, err
	}

	e.log.Info().
		Str("path", path).
		Int64("start", span.Start).
		Int64("bytes", n).
		Msg("Snippet saved")

	return result, nil
}

// WriteTo streams the planned part of buf as a WAV container to w.
func (e *Exporter) WriteTo(w io.WriteSeeker, buf *audio.RecordingBuffer, sel playback.Range) (int64, error) {
	if buf == nil {
		return 0, nil
	}
	return e.write(w, buf, Plan(buf, sel))
}

func (e *Exporter) write(w io.WriteSeeker, buf *audio.RecordingBuffer, span Span) (int64, error) {
	f := buf.Format()
	out, err := audio.NewWAVWriter(w, f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExportWriteFailed, err)
	}

	reader := buf.NewReader()
	if _, err := reader.Seek(span.Start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to position export reader: %w", err)
	}

	chunkSize := f.AverageBytesPerSecond()
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	chunk := make([]byte, chunkSize)
	remaining := span.Length

	for remaining > 0 {
		want := int64(len(chunk))
		if remaining < want {
			want = remaining
		}
		n, rerr := reader.Read(chunk[:want])
		if n > 0 {
			if _, err := out.Write(chunk[:n]); err != nil {
				return out.Written(), fmt.Errorf("%w: %v", ErrExportWriteFailed, err)
			}
			if e.onChunk != nil {
				e.onChunk(n)
			}
			remaining -= int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return out.Written(), fmt.Errorf("failed to read recording: %w", rerr)
		}
	}

	if err := out.Close(); err != nil {
		return out.Written(), fmt.Errorf("%w: %v", ErrExportWriteFailed, err)
	}
	return out.Written(), nil
}
