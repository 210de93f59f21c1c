package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/petems/snip-tray/internal/config"
)

type malgoCapture struct {
	ctx      *malgo.AllocatedContext
	loopback bool
}

// NewMalgoCapture creates a miniaudio-based capture backend. With loopback
// enabled it records what the default (or selected) playback device renders.
func NewMalgoCapture(cfg config.AudioConfig) (Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	return &malgoCapture{ctx: ctx, loopback: cfg.Loopback}, nil
}

func (m *malgoCapture) deviceKind() malgo.DeviceType {
	// Loopback endpoints are the playback devices.
	if m.loopback {
		return malgo.Playback
	}
	return malgo.Capture
}

func (m *malgoCapture) Open(deviceID string) (Stream, error) {
	deviceType := malgo.Capture
	if m.loopback {
		deviceType = malgo.Loopback
	}
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	// Zero values select the device's native mix format.
	deviceConfig.Capture.Format = malgo.FormatUnknown
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0

	if deviceID != "" {
		infos, err := m.ctx.Devices(m.deviceKind())
		if err != nil {
			return nil, fmt.Errorf("%w: failed to enumerate devices: %v", ErrDeviceUnavailable, err)
		}
		var found *malgo.DeviceInfo
		for i := range infos {
			if infos[i].Name() == deviceID {
				found = &infos[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, deviceID)
		}
		deviceConfig.Capture.DeviceID = found.ID.Pointer()
	}

	s := &malgoStream{}
	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	f, err := formatFromMalgo(device.CaptureFormat(), device.CaptureChannels(), device.SampleRate())
	if err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.device = device
	s.format = f
	return s, nil
}

func (m *malgoCapture) ListDevices() ([]AudioDevice, error) {
	infos, err := m.ctx.Devices(m.deviceKind())
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		result = append(result, AudioDevice{
			ID:      name,
			Name:    name,
			Default: infos[i].IsDefault != 0,
		})
	}
	return result, nil
}

func (m *malgoCapture) Close() error {
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}

type malgoStream struct {
	device *malgo.Device
	format Format

	mu   sync.Mutex
	sink func(p []byte)
}

func (s *malgoStream) Format() Format {
	return s.format
}

func (s *malgoStream) onData(_, input []byte, _ uint32) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(input)
	}
}

func (s *malgoStream) Start(sink func(p []byte)) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if s.device == nil {
		return nil
	}
	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil

	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
	return err
}

func formatFromMalgo(ft malgo.FormatType, channels, sampleRate uint32) (Format, error) {
	f := Format{
		Encoding:      EncodingPCM,
		SampleRate:    int(sampleRate),
		Channels:      int(channels),
		BitsPerSample: malgo.SampleSizeInBytes(ft) * 8,
	}
	if ft == malgo.FormatF32 {
		f.Encoding = EncodingFloat
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}
