package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/snip-tray/internal/config"
)

const portAudioFramesPerBuffer = 512

type portAudioCapture struct{}

// NewPortAudioCapture creates a PortAudio-based capture backend. On Linux
// and macOS loopback is reached by selecting a monitor device by name
// (PulseAudio "Monitor of ...", BlackHole, Soundflower).
func NewPortAudioCapture(cfg config.AudioConfig) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) Open(deviceID string) (Stream, error) {
	// Find device
	var device *portaudio.DeviceInfo
	if deviceID == "" {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get default input device: %v", ErrDeviceUnavailable, err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to enumerate devices: %v", ErrDeviceUnavailable, err)
		}
		for _, d := range devices {
			if d.Name == deviceID && d.MaxInputChannels > 0 {
				device = d
				break
			}
		}
	}

	if device == nil {
		return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, deviceID)
	}

	channels := device.MaxInputChannels
	if channels > 2 {
		channels = 2
	}

	// Open stream: device's native rate, float32
	s := &portAudioStream{
		buffer: make([]float32, portAudioFramesPerBuffer*channels),
		format: Format{
			Encoding:      EncodingFloat,
			SampleRate:    int(device.DefaultSampleRate),
			Channels:      channels,
			BitsPerSample: 32,
		},
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: portAudioFramesPerBuffer,
	}, s.buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio stream: %v", ErrDeviceUnavailable, err)
	}
	s.stream = stream
	return s, nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	portaudio.Terminate()
	return nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buffer []float32
	format Format

	done chan struct{}
	wg   sync.WaitGroup
	err  error // read loop failure, reported by Stop
}

func (s *portAudioStream) Format() Format {
	return s.format
}

// Start starts the device. On failure the stream stays open; Stop
// releases it.
func (s *portAudioStream) Start(sink func(p []byte)) error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("%w: failed to start audio stream: %v", ErrDeviceUnavailable, err)
	}

	s.done = make(chan struct{})
	s.wg.Add(1)

	// Read loop
	go func() {
		defer s.wg.Done()
		s.err = readLoop(s.stream.Read, s.buffer, sink, s.done)
	}()

	return nil
}

// readLoop delivers each block read into samples until done is closed or
// read fails. An input overflow only means blocks were lost before this
// one, so the block is delivered and reading continues.
func readLoop(read func() error, samples []float32, sink func(p []byte), done <-chan struct{}) error {
	encoded := make([]byte, 0, len(samples)*4)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if err := read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("%w: capture read failed: %v", ErrDeviceUnavailable, err)
		}
		encoded = EncodeFloat32(encoded[:0], samples)
		sink(encoded)
	}
}

func (s *portAudioStream) Stop() error {
	if s.stream == nil {
		return nil
	}
	var err error
	if s.done != nil {
		close(s.done)
		err = s.stream.Stop()
		s.wg.Wait()
		if err == nil {
			err = s.err
		}
	}
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	s.stream = nil
	return err
}
