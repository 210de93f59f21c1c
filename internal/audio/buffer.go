package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrBufferSealed is returned when appending to a finalized recording.
var ErrBufferSealed = errors.New("recording buffer is sealed")

// RecordingBuffer is an in-memory WAVE container: a 44-byte header followed
// by interleaved sample data appended in delivery order.
//
// While recording, only the capture thread writes. After Seal the contents
// never change, so any number of readers created with NewReader may run
// concurrently, each with its own cursor.
type RecordingBuffer struct {
	mu     sync.RWMutex
	format Format
	data   []byte
	sealed bool
}

// NewRecordingBuffer allocates an empty container for f with room for
// capacity sample bytes before the first reallocation.
func NewRecordingBuffer(f Format, capacity int) *RecordingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	data := make([]byte, 0, HeaderSize+capacity)
	data = append(data, EncodeHeader(f, 0)...)
	return &RecordingBuffer{format: f, data: data}
}

// Write appends sample bytes. It implements io.Writer for the capture path.
func (b *RecordingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, ErrBufferSealed
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Seal fixes the buffer length and corrects the header length fields.
// Sealing twice is a no-op.
func (b *RecordingBuffer) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return
	}
	dataSize := uint32(len(b.data) - HeaderSize)
	binary.LittleEndian.PutUint32(b.data[4:8], 36+dataSize)
	binary.LittleEndian.PutUint32(b.data[40:44], dataSize)
	b.sealed = true
}

// Sealed reports whether capture has finished.
func (b *RecordingBuffer) Sealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sealed
}

// Format returns the sample format of the recording.
func (b *RecordingBuffer) Format() Format {
	return b.format
}

// Len returns the number of sample bytes (header excluded).
func (b *RecordingBuffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data) - HeaderSize)
}

// Frames returns the number of whole sample-frames in the recording.
func (b *RecordingBuffer) Frames() int64 {
	align := b.format.BlockAlign()
	if align <= 0 {
		return 0
	}
	return b.Len() / int64(align)
}

// Duration returns the playing time of the recording.
func (b *RecordingBuffer) Duration() time.Duration {
	return b.format.Duration(b.Len())
}

// OffsetOf maps t to a byte offset into the sample data proportionally to
// the recording's duration.
func (b *RecordingBuffer) OffsetOf(t time.Duration) int64 {
	return OffsetAt(t, b.Duration(), b.Len())
}

// TimeOf maps a byte offset into the sample data to playing time.
func (b *RecordingBuffer) TimeOf(offset int64) time.Duration {
	return TimeAt(offset, b.Len(), b.Duration())
}

// NewReader returns an independent cursor over the sample data as it stands
// now. Readers taken before Seal do not observe later appends.
func (b *RecordingBuffer) NewReader() *io.SectionReader {
	b.mu.RLock()
	snapshot := b.data[:len(b.data):len(b.data)]
	b.mu.RUnlock()
	return io.NewSectionReader(bytes.NewReader(snapshot), HeaderSize, int64(len(snapshot)-HeaderSize))
}

// WriteTo writes the whole container, header included.
func (b *RecordingBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.RLock()
	snapshot := b.data[:len(b.data):len(b.data)]
	b.mu.RUnlock()
	n, err := w.Write(snapshot)
	return int64(n), err
}
