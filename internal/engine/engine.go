// Package engine ties capture, the waveform pass, playback, selection and
// export into the recorder the tray and the hotkey drive.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/export"
	"github.com/petems/snip-tray/internal/metrics"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/petems/snip-tray/internal/waveform"
	"github.com/rs/zerolog"
)

type Config struct {
	Capture              audio.Capture
	DeviceID             string
	InitialBufferSeconds int
	Device               playback.Device
	// PollInterval overrides the playback position refresh.
	PollInterval time.Duration
	// FrameSize overrides the sample-frames per waveform and meter frame.
	FrameSize int
	Metrics   *metrics.Metrics // Optional
	Logger    zerolog.Logger
}

// Engine records one clip at a time and lets it be played, looped over a
// selection and saved.
//
// Lifecycle operations (StartRecording, StopRecording, Save, Close) are
// serialized; accessors may be called from any goroutine.
type Engine struct {
	capture    audio.Capture
	bufferSecs int
	frameSize  int
	metrics    *metrics.Metrics
	log        zerolog.Logger

	selection *playback.Selection
	player    *playback.Controller
	bus       *Bus

	obsMu     sync.RWMutex
	observers []Observer

	ops sync.Mutex

	mu        sync.Mutex
	deviceID  string
	session   *audio.CaptureSession
	buffer    *audio.RecordingBuffer
	summary   waveform.Summary
	recording bool
}

func New(cfg Config) *Engine {
	e := &Engine{
		capture:    cfg.Capture,
		bufferSecs: cfg.InitialBufferSeconds,
		frameSize:  cfg.FrameSize,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		deviceID:   cfg.DeviceID,
		selection:  playback.NewSelection(),
		bus:        NewBus(),
		summary:    waveform.NewSummary(),
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}

	e.player = playback.NewController(playback.Config{
		Device:       cfg.Device,
		Selection:    e.selection,
		PollInterval: cfg.PollInterval,
		FrameSize:    cfg.FrameSize,
		OnEvent:      e.onPlayback,
		Logger:       cfg.Logger,
	})
	e.selection.OnChange(func(r playback.Range) {
		e.publish(Change{Kind: SelectionChanged, Selection: r})
	})
	return e
}

// Bus returns the engine's change bus.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// AddObserver registers o for synchronous notification.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	e.observers = append(e.observers, o)
	e.obsMu.Unlock()
}

// SetDevice selects the capture device used by the next recording.
func (e *Engine) SetDevice(id string) {
	e.mu.Lock()
	e.deviceID = id
	e.mu.Unlock()
}

// StartRecording opens the capture device and starts a new recording. It
// does nothing while already recording. Playback is paused first; the
// previous recording is only discarded once the device has started, so a
// failure wrapping audio.ErrDeviceUnavailable leaves it playable.
func (e *Engine) StartRecording() error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	recording, deviceID := e.recording, e.deviceID
	e.mu.Unlock()
	if recording {
		return nil
	}

	if err := e.player.Pause(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to pause playback before recording")
	}

	session, err := audio.StartSession(audio.SessionConfig{
		Capture:              e.capture,
		DeviceID:             deviceID,
		InitialBufferSeconds: e.bufferSecs,
		Logger:               e.log,
		OnData:               e.metrics.AddCaptured,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to start recording")
		return err
	}

	if err := e.player.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to release playback device")
	}

	e.mu.Lock()
	e.session = session
	e.buffer = nil
	e.summary = waveform.NewSummary()
	e.recording = true
	e.mu.Unlock()

	e.publish(Change{Kind: RecordingChanged, Recording: true})
	e.publishWaveform(waveform.NewSummary(), false)
	e.publish(Change{Kind: LengthChanged})
	return nil
}

// StopRecording closes the device, builds the waveform summary and
// prepares playback from the start. Snapshots of the summary are published
// while the pass runs. It does nothing unless recording.
func (e *Engine) StopRecording(ctx context.Context) error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	session := e.session
	if !e.recording || session == nil {
		e.mu.Unlock()
		return nil
	}
	e.recording = false
	e.session = nil
	e.mu.Unlock()

	stopErr := session.Stop()
	if stopErr != nil {
		e.log.Warn().Err(stopErr).Msg("Capture device did not stop cleanly")
	}
	buf := session.Buffer()
	e.metrics.RecordRecording(buf.Duration())

	e.publish(Change{Kind: RecordingChanged, Recording: false})

	started := time.Now()
	publish := func(s waveform.Summary, final bool) {
		if final {
			e.mu.Lock()
			e.summary = s
			e.mu.Unlock()
		}
		e.publishWaveform(s, final)
	}
	ds := waveform.New(waveform.Config{
		FrameSize: e.frameSize,
		Publish:   publish,
		Logger:    e.log,
	})
	summary, err := ds.Run(ctx, buf)
	e.metrics.RecordWaveformPass(time.Since(started))

	e.mu.Lock()
	e.buffer = buf
	e.summary = summary
	e.mu.Unlock()
	if err != nil {
		// The recording is still usable; the summary is whatever was
		// committed before cancellation. A finished pass has already
		// published it.
		e.log.Warn().Err(err).Msg("Waveform pass interrupted")
		e.publishWaveform(summary, true)
	}

	e.player.Load(buf)
	e.player.SetPosition(0, playback.OriginPlayback)
	e.publish(Change{Kind: LengthChanged, Length: buf.Duration()})

	e.log.Info().
		Dur("duration", buf.Duration()).
		Int("buckets", summary.Filled()).
		Msg("Recording ready")

	return stopErr
}

// Play starts or resumes playback. It does nothing without a recording.
func (e *Engine) Play() error {
	return e.player.Play()
}

// Pause pauses playback, keeping the position.
func (e *Engine) Pause() error {
	return e.player.Pause()
}

// Save writes the selected part of the recording, or all of it without a
// selection, to path. With nothing recorded it does nothing and returns a
// zero Result.
func (e *Engine) Save(path string) (export.Result, error) {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	buf := e.buffer
	e.mu.Unlock()
	if buf == nil {
		return export.Result{}, nil
	}

	exporter := export.New(export.Config{
		Logger:  e.log,
		OnChunk: e.metrics.AddExported,
	})
	result, err := exporter.Export(buf, e.selection.Range(), path)
	e.metrics.RecordExport(err)

	e.publish(Change{Kind: Saved, Path: result.Path, Bytes: result.Bytes, Err: err})
	return result, err
}

// Close stops any capture, releases the playback device and discards the
// recording. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.ops.Lock()
	defer e.ops.Unlock()

	e.mu.Lock()
	session := e.session
	wasRecording := e.recording
	hadBuffer := e.buffer != nil
	e.session = nil
	e.recording = false
	e.buffer = nil
	e.summary = waveform.NewSummary()
	e.mu.Unlock()

	if session != nil {
		if err := session.Stop(); err != nil {
			e.log.Warn().Err(err).Msg("Capture device did not stop cleanly")
		}
	}
	err := e.player.Close()

	if wasRecording {
		e.publish(Change{Kind: RecordingChanged, Recording: false})
	}
	if wasRecording || hadBuffer {
		e.publishWaveform(waveform.NewSummary(), true)
		e.publish(Change{Kind: LengthChanged})
	}
	return err
}

// IsRecording reports whether capture is running.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// IsPlaying reports whether the playback device is rendering.
func (e *Engine) IsPlaying() bool {
	return e.player.State() == playback.Playing
}

// State returns the playback state.
func (e *Engine) State() playback.State {
	return e.player.State()
}

// HasRecording reports whether a finished recording is loaded.
func (e *Engine) HasRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer != nil
}

// Buffer returns the finished recording, or nil.
func (e *Engine) Buffer() *audio.RecordingBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer
}

// Waveform returns the summary of the finished recording.
func (e *Engine) Waveform() waveform.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Position returns the playback position.
func (e *Engine) Position() time.Duration {
	return e.player.Position()
}

// SetPosition seeks playback to t, clamped to the recording.
func (e *Engine) SetPosition(t time.Duration) {
	e.player.SetPosition(t, playback.OriginUser)
}

// Length returns the playing time of the recording.
func (e *Engine) Length() time.Duration {
	return e.player.Length()
}

// Levels returns the playback level meter.
func (e *Engine) Levels() (left, right float32) {
	return e.player.Levels()
}

// Selection returns the current selection.
func (e *Engine) Selection() playback.Range {
	return e.selection.Range()
}

// SetSelectionBegin moves the selection start. It reports false when the
// update was ignored because a selection change is being dispatched.
func (e *Engine) SetSelectionBegin(t time.Duration) bool {
	return e.selection.SetBegin(t)
}

// SetSelectionEnd moves the selection end. See SetSelectionBegin.
func (e *Engine) SetSelectionEnd(t time.Duration) bool {
	return e.selection.SetEnd(t)
}

// ClearSelection selects the whole recording.
func (e *Engine) ClearSelection() bool {
	return e.selection.Clear()
}

func (e *Engine) onPlayback(ev playback.Event) {
	switch ev.Kind {
	case playback.StateChanged:
		e.publish(Change{
			Kind:    PlaybackChanged,
			State:   ev.State,
			Playing: ev.State == playback.Playing,
			Err:     ev.Err,
		})
	case playback.PositionChanged:
		e.publish(Change{Kind: PositionChanged, Position: ev.Position, Origin: ev.Origin})
	case playback.Looped:
		e.metrics.RecordLoop()
		e.publish(Change{Kind: Looped})
	}
}

func (e *Engine) publishWaveform(s waveform.Summary, final bool) {
	snapshot := s
	e.publish(Change{Kind: WaveformChanged, Waveform: &snapshot, Final: final})
}

func (e *Engine) publish(c Change) {
	e.obsMu.RLock()
	observers := e.observers
	e.obsMu.RUnlock()

	for _, o := range observers {
		o.OnChange(c)
	}
	e.bus.Publish(c)
}
