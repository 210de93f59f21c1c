package playback

import (
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/petems/snip-tray/internal/audio"
)

// Stream decodes a sealed recording one sample-frame at a time through its
// own cursor. Positions are sample-frames for beep and byte offsets into
// the sample data for proportional time mapping.
//
// Stream is not safe for concurrent use; Controller serializes access.
type Stream struct {
	r      *io.SectionReader
	format audio.Format
	align  int64
	length int64
	total  time.Duration

	offset int64
	frame  []byte
	err    error
}

var _ beep.StreamSeeker = (*Stream)(nil)

// NewStream opens a decode cursor at the start of buf.
func NewStream(buf *audio.RecordingBuffer) *Stream {
	f := buf.Format()
	align := int64(f.BlockAlign())
	length := buf.Len()
	// Whole frames only.
	length -= length % align
	return &Stream{
		r:      buf.NewReader(),
		format: f,
		align:  align,
		length: length,
		total:  buf.Duration(),
		frame:  make([]byte, align),
	}
}

// Next decodes the frame at the cursor and advances past it. It reports
// false at the end of the recording or after a read error.
func (s *Stream) Next() (left, right float32, ok bool) {
	if s.err != nil || s.offset+s.align > s.length {
		return 0, 0, false
	}
	if _, err := s.r.ReadAt(s.frame, s.offset); err != nil {
		s.err = fmt.Errorf("failed to read recording at %d: %w", s.offset, err)
		return 0, 0, false
	}
	s.offset += s.align
	left, right = audio.DecodeFrame(s.format, s.frame)
	return left, right, true
}

// Stream implements beep.Streamer.
func (s *Stream) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		left, right, more := s.Next()
		if !more {
			break
		}
		samples[n] = [2]float64{float64(left), float64(right)}
		n++
	}
	return n, n > 0
}

// Err implements beep.Streamer.
func (s *Stream) Err() error {
	return s.err
}

// Len returns the number of sample-frames.
func (s *Stream) Len() int {
	return int(s.length / s.align)
}

// Position returns the cursor in sample-frames.
func (s *Stream) Position() int {
	return int(s.offset / s.align)
}

// Seek moves the cursor to sample-frame p.
func (s *Stream) Seek(p int) error {
	if p < 0 || p > s.Len() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.Len())
	}
	s.offset = int64(p) * s.align
	return nil
}

// Offset returns the cursor as a byte offset into the sample data.
func (s *Stream) Offset() int64 {
	return s.offset
}

// SetOffset moves the cursor to off, clamped to the recording and rounded
// down to a whole sample-frame.
func (s *Stream) SetOffset(off int64) {
	if off < 0 {
		off = 0
	}
	if off > s.length {
		off = s.length
	}
	s.offset = off - off%s.align
}

// Length returns the size of the sample data in bytes.
func (s *Stream) Length() int64 {
	return s.length
}

// Duration returns the playing time of the recording.
func (s *Stream) Duration() time.Duration {
	return s.total
}

// OffsetOf maps playing time onto a byte offset.
func (s *Stream) OffsetOf(t time.Duration) int64 {
	return audio.OffsetAt(t, s.total, s.length)
}

// TimeOf maps a byte offset onto playing time.
func (s *Stream) TimeOf(off int64) time.Duration {
	return audio.TimeAt(off, s.length, s.total)
}

// Format returns the stream format in beep terms.
func (s *Stream) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(s.format.SampleRate),
		NumChannels: 2,
		Precision:   s.format.BitsPerSample / 8,
	}
}
