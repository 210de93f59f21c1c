package audio

import (
	"errors"
	"fmt"

	"github.com/petems/snip-tray/internal/config"
)

// ErrDeviceUnavailable is returned when a capture device cannot be opened
// or started (no default loopback endpoint, exclusive-mode conflict).
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Capture defines the interface for an audio capture backend
type Capture interface {
	Open(deviceID string) (Stream, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// Stream is an opened capture device. Start registers the sink that
// receives each delivered block of encoded bytes on the device's audio
// thread; the slice is only valid for the duration of the call.
type Stream interface {
	Format() Format
	Start(sink func(p []byte)) error
	Stop() error
}

// AudioDevice represents an audio capture device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

// New creates the capture backend selected by cfg.Backend
func New(cfg config.AudioConfig) (Capture, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return NewPortAudioCapture(cfg)
	case config.BackendMalgo, "":
		return NewMalgoCapture(cfg)
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", cfg.Backend)
	}
}
