package audio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// SessionConfig configures a capture session.
type SessionConfig struct {
	Capture  Capture
	DeviceID string
	// InitialBufferSeconds sizes the first allocation of the recording
	// buffer so short recordings never reallocate on the audio thread.
	InitialBufferSeconds int
	Logger               zerolog.Logger
	// OnData, when set, is called on the audio thread with the number of
	// bytes appended for each delivered block.
	OnData func(n int)
}

// CaptureSession owns an open capture device for the duration of one
// recording. Every delivered block is appended to the session's buffer in
// delivery order.
type CaptureSession struct {
	log    zerolog.Logger
	stream Stream
	buffer *RecordingBuffer
	onData func(n int)

	mu      sync.Mutex
	stopped bool
}

// StartSession opens the device at its native format, allocates a fresh
// RecordingBuffer and starts delivery. When the device cannot be opened or
// started the error wraps ErrDeviceUnavailable and no buffer is kept.
func StartSession(cfg SessionConfig) (*CaptureSession, error) {
	stream, err := cfg.Capture.Open(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	f := stream.Format()
	capacity := cfg.InitialBufferSeconds * f.AverageBytesPerSecond()

	s := &CaptureSession{
		log:    cfg.Logger,
		stream: stream,
		buffer: NewRecordingBuffer(f, capacity),
		onData: cfg.OnData,
	}

	if err := stream.Start(s.append); err != nil {
		_ = stream.Stop()
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	s.log.Info().
		Str("device", cfg.DeviceID).
		Str("format", f.String()).
		Msg("Capture started")

	return s, nil
}

// append runs on the device's audio thread.
func (s *CaptureSession) append(p []byte) {
	n, err := s.buffer.Write(p)
	if err != nil {
		// Late block delivered after Stop sealed the buffer.
		return
	}
	if s.onData != nil {
		s.onData(n)
	}
}

// Buffer returns the recording buffer being filled.
func (s *CaptureSession) Buffer() *RecordingBuffer {
	return s.buffer
}

// Format returns the device format the recording is captured in.
func (s *CaptureSession) Format() Format {
	return s.buffer.Format()
}

// Stop closes the device and seals the buffer. Later calls do nothing.
func (s *CaptureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	err := s.stream.Stop()
	s.buffer.Seal()

	s.log.Info().
		Int64("bytes", s.buffer.Len()).
		Dur("duration", s.buffer.Duration()).
		Msg("Capture stopped")

	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

// Stopped reports whether Stop has been called.
func (s *CaptureSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
