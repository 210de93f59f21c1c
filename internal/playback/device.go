package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Device renders a streamer to an output endpoint.
type Device interface {
	// Start begins pulling from src on the device's own goroutine. fail is
	// called, from that goroutine, when rendering cannot continue.
	Start(f beep.Format, src beep.Streamer, fail func(error)) error
	Stop() error
	Close() error
}

// DeviceConfig configures the PortAudio output device.
type DeviceConfig struct {
	// DeviceName selects an output by name; empty uses the default output.
	DeviceName      string
	Latency         time.Duration
	FramesPerBuffer int
	Logger          zerolog.Logger
}

type portAudioDevice struct {
	cfg DeviceConfig
	log zerolog.Logger

	mu          sync.Mutex
	initialized bool
	stream      *portaudio.Stream
	format      beep.Format
	buffer      []float32
	scratch     [][2]float64
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewPortAudioDevice creates an output device backed by PortAudio. The
// library is initialized on first Start and released by Close, so the
// device can be started again after Close.
func NewPortAudioDevice(cfg DeviceConfig) (Device, error) {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 512
	}
	return &portAudioDevice{cfg: cfg, log: cfg.Logger}, nil
}

func (p *portAudioDevice) Start(f beep.Format, src beep.Streamer, fail func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.New("output device already started")
	}
	if !p.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		p.initialized = true
	}
	if p.stream == nil || p.format != f {
		if err := p.openLocked(f); err != nil {
			return err
		}
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.writeLoop(p.stream, src, fail, p.done)

	return nil
}

func (p *portAudioDevice) openLocked(f beep.Format) error {
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}

	device, err := p.outputDevice()
	if err != nil {
		return err
	}

	latency := p.cfg.Latency
	if latency <= 0 {
		latency = device.DefaultLowOutputLatency
	}

	p.buffer = make([]float32, p.cfg.FramesPerBuffer*2)
	p.scratch = make([][2]float64, p.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 2,
			Latency:  latency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: p.cfg.FramesPerBuffer,
	}, p.buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	p.log.Debug().
		Str("device", device.Name).
		Int("sample_rate", int(f.SampleRate)).
		Dur("latency", latency).
		Msg("Output stream opened")

	p.stream = stream
	p.format = f
	return nil
}

func (p *portAudioDevice) outputDevice() (*portaudio.DeviceInfo, error) {
	if p.cfg.DeviceName == "" {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default output device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == p.cfg.DeviceName && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("output device not found: %s", p.cfg.DeviceName)
}

func (p *portAudioDevice) writeLoop(stream *portaudio.Stream, src beep.Streamer, fail func(error), done <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-done:
			return
		default:
		}

		n, _ := src.Stream(p.scratch)
		for i := 0; i < len(p.scratch); i++ {
			if i < n {
				p.buffer[2*i] = float32(p.scratch[i][0])
				p.buffer[2*i+1] = float32(p.scratch[i][1])
			} else {
				p.buffer[2*i] = 0
				p.buffer[2*i+1] = 0
			}
		}

		if err := stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			fail(err)
			return
		}
	}
}

func (p *portAudioDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	p.done = nil

	return p.stream.Stop()
}

func (p *portAudioDevice) Close() error {
	if err := p.Stop(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to stop output stream")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	if p.initialized {
		portaudio.Terminate()
		p.initialized = false
	}
	return nil
}
