package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// HeaderSize is the size of the canonical RIFF/WAVE header written for
// recordings and exports.
const HeaderSize = 44

// wavHeader is the canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

func newWAVHeader(f Format, dataSize uint32) wavHeader {
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   uint16(f.Encoding),
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.AverageBytesPerSecond()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeHeader returns the 44-byte header for dataSize bytes of f.
func EncodeHeader(f Format, dataSize uint32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	// Writes into a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, newWAVHeader(f, dataSize))
	return buf.Bytes()
}

// WAVWriter streams sample data into a WAVE container and corrects the
// header length fields on Close.
type WAVWriter struct {
	w       io.WriteSeeker
	format  Format
	written int64
	closed  bool
}

// NewWAVWriter writes a provisional header for f to w.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, err := w.Write(EncodeHeader(f, 0)); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return &WAVWriter{w: w, format: f}, nil
}

func (ww *WAVWriter) Write(p []byte) (int, error) {
	if ww.closed {
		return 0, errors.New("write to closed WAV writer")
	}
	n, err := ww.w.Write(p)
	ww.written += int64(n)
	return n, err
}

// Written returns the number of sample bytes written so far.
func (ww *WAVWriter) Written() int64 {
	return ww.written
}

// Close rewrites the header with the final sizes. The underlying writer is
// left open.
func (ww *WAVWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to WAV header: %w", err)
	}
	if _, err := ww.w.Write(EncodeHeader(ww.format, uint32(ww.written))); err != nil {
		return fmt.Errorf("failed to rewrite WAV header: %w", err)
	}
	if _, err := ww.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of WAV data: %w", err)
	}
	return nil
}

// ReadWAV loads a WAVE file into a sealed RecordingBuffer so recordings
// captured elsewhere can be summarized, played or trimmed.
func ReadWAV(r io.ReadSeeker) (*RecordingBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("invalid WAV file: %w", err)
		}
		return nil, errors.New("invalid WAV file")
	}

	encoding := Encoding(dec.WavAudioFormat)
	if encoding == formatExtensible {
		// The decoder skips the fmt extension that names the real encoding.
		sub, err := extensibleEncoding(r)
		if err != nil {
			return nil, err
		}
		encoding = sub
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind WAV file: %w", err)
		}
		dec = wav.NewDecoder(r)
		if !dec.IsValidFile() {
			return nil, errors.New("invalid WAV file")
		}
	}

	f := Format{
		Encoding:      encoding,
		SampleRate:    int(dec.SampleRate),
		Channels:      int(dec.NumChans),
		BitsPerSample: int(dec.BitDepth),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}
	// The chunk reader is not bounded; trailing chunks must not be read as samples.
	pcm, err := io.ReadAll(io.LimitReader(dec.PCMChunk, int64(dec.PCMSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	// Trailing partial sample-frames cannot be decoded.
	pcm = pcm[:len(pcm)-len(pcm)%f.BlockAlign()]

	buf := NewRecordingBuffer(f, len(pcm))
	if _, err := buf.Write(pcm); err != nil {
		return nil, err
	}
	buf.Seal()
	return buf, nil
}

// formatExtensible is the WAVE_FORMAT_EXTENSIBLE tag.
const formatExtensible Encoding = 0xFFFE

// extensibleEncoding reads the SubFormat GUID of a WAVE_FORMAT_EXTENSIBLE
// fmt chunk. Its first two bytes are the plain format tag.
func extensibleEncoding(r io.ReadSeeker) (Encoding, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to rewind WAV file: %w", err)
	}
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return 0, fmt.Errorf("invalid WAV file: %w", err)
	}
	for {
		chunk, err := p.NextChunk()
		if err != nil {
			return 0, fmt.Errorf("fmt chunk not found: %w", err)
		}
		if chunk.ID != riff.FmtID {
			if _, err := io.CopyN(io.Discard, r, int64(chunk.Size)); err != nil {
				return 0, fmt.Errorf("failed to skip %s chunk: %w", chunk.ID, err)
			}
			continue
		}

		// 16 bytes of plain fmt, cbSize, valid bits, channel mask, then
		// the 16-byte SubFormat GUID.
		body := make([]byte, chunk.Size)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, fmt.Errorf("failed to read fmt chunk: %w", err)
		}
		if len(body) < 40 {
			return 0, fmt.Errorf("extensible fmt chunk too short: %d bytes", len(body))
		}
		sub := Encoding(binary.LittleEndian.Uint16(body[24:26]))
		if sub != EncodingPCM && sub != EncodingFloat {
			return 0, fmt.Errorf("unsupported extensible sub-format: %s", sub)
		}
		return sub, nil
	}
}
