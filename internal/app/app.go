package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/config"
	"github.com/petems/snip-tray/internal/engine"
	"github.com/petems/snip-tray/internal/export"
	"github.com/petems/snip-tray/internal/hotkey"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/petems/snip-tray/internal/share"
	"github.com/rs/zerolog"
)

type Mode int

const (
	PushToTalk Mode = iota
	Toggle
)

// stopTimeout bounds the waveform pass run when a recording stops.
const stopTimeout = 30 * time.Second

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetReady()
	SetPlaying()
	SetError()
}

// Recorder is the part of the engine the app drives.
type Recorder interface {
	StartRecording() error
	StopRecording(ctx context.Context) error
	Play() error
	Pause() error
	Save(path string) (export.Result, error)
	Close() error
	IsRecording() bool
	IsPlaying() bool
	HasRecording() bool
	SetDevice(id string)
}

var (
	_ Recorder        = (*engine.Engine)(nil)
	_ engine.Observer = (*App)(nil)
)

type Config struct {
	Engine        Recorder
	Capture       audio.Capture
	Hotkeys       hotkey.Manager
	Sharer        share.Sharer // Optional - can be nil
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
	// Now returns the time used to name snippets. Defaults to time.Now.
	Now func() time.Time
}

type App struct {
	engine  Recorder
	capture audio.Capture
	hotkeys hotkey.Manager
	sharer  share.Sharer
	cfg     *config.Config
	log     zerolog.Logger
	status  StatusUpdater
	now     func() time.Time

	mu sync.Mutex
}

func New(cfg Config) *App {
	a := &App{
		engine:  cfg.Engine,
		capture: cfg.Capture,
		hotkeys: cfg.Hotkeys,
		sharer:  cfg.Sharer,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
		now:     cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// SetStatusUpdater sets the status target (for circular dependency
// resolution with the tray).
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// RegisterHotkey binds the configured hotkey to OnHotkey.
func (a *App) RegisterHotkey() error {
	if a.hotkeys == nil {
		return fmt.Errorf("no hotkey manager")
	}
	accel := a.cfg.PlatformHotkey()
	if err := a.hotkeys.Register(accel, a.OnHotkey); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", accel, err)
	}
	a.log.Info().Str("hotkey", accel).Str("mode", a.cfg.Mode).Msg("Hotkey registered")
	return nil
}

func (a *App) mode() Mode {
	if a.cfg.Mode == config.ModePushToTalk {
		return PushToTalk
	}
	return Toggle
}

func (a *App) OnHotkey(pressed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.mode() {
	case PushToTalk:
		if pressed {
			a.startRecordingLocked()
		} else {
			a.stopRecordingLocked()
		}
	case Toggle:
		if !pressed {
			return
		}
		if !a.engine.IsRecording() {
			a.startRecordingLocked()
		} else {
			a.stopRecordingLocked()
		}
	}
}

// ToggleRecording starts or stops a recording, as the tray menu does.
func (a *App) ToggleRecording() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsRecording() {
		a.stopRecordingLocked()
	} else {
		a.startRecordingLocked()
	}
}

func (a *App) startRecordingLocked() {
	if a.engine.IsRecording() {
		return
	}

	a.log.Info().Msg("Starting recording")
	if err := a.engine.StartRecording(); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		a.setStatus(StatusUpdater.SetError)
		return
	}
	a.setStatus(StatusUpdater.SetRecording)
}

func (a *App) stopRecordingLocked() {
	if !a.engine.IsRecording() {
		return
	}

	a.log.Info().Msg("Stopping recording")
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := a.engine.StopRecording(ctx); err != nil {
		a.log.Error().Err(err).Msg("Recording stopped with error")
	}
	if a.engine.HasRecording() {
		a.setStatus(StatusUpdater.SetReady)
	} else {
		a.setStatus(StatusUpdater.SetIdle)
	}
}

// TogglePlayback plays the recording, or pauses it while playing.
func (a *App) TogglePlayback() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsPlaying() {
		return a.pauseLocked()
	}
	return a.playLocked()
}

func (a *App) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playLocked()
}

func (a *App) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pauseLocked()
}

func (a *App) playLocked() error {
	if a.engine.IsRecording() || !a.engine.HasRecording() {
		return nil
	}
	if err := a.engine.Play(); err != nil {
		a.setStatus(StatusUpdater.SetError)
		return err
	}
	a.setStatus(StatusUpdater.SetPlaying)
	return nil
}

func (a *App) pauseLocked() error {
	if err := a.engine.Pause(); err != nil {
		a.setStatus(StatusUpdater.SetError)
		return err
	}
	if a.engine.HasRecording() {
		a.setStatus(StatusUpdater.SetReady)
	}
	return nil
}

// SaveSnippet saves the selection, or the whole recording, to a
// timestamped file in the export directory and returns its path. With
// nothing recorded it returns an empty path and no error.
func (a *App) SaveSnippet() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsRecording() {
		return "", fmt.Errorf("cannot save while recording")
	}

	path := a.cfg.SnippetPath(a.now())
	result, err := a.engine.Save(path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("Failed to save snippet")
		a.setStatus(StatusUpdater.SetError)
		return path, err
	}
	if result.Path == "" {
		a.log.Info().Msg("Nothing recorded to save")
		return "", nil
	}

	if a.cfg.Export.CopyPathToClipboard && a.sharer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.sharer.CopyPath(ctx, result.Path); err != nil {
			// The snippet is saved; only the convenience failed.
			a.log.Warn().Err(err).Msg("Failed to copy snippet path")
		} else {
			a.log.Info().Str("path", result.Path).Msg("Copied snippet path")
		}
	}

	return result.Path, nil
}

// Discard drops the recording and releases the playback device.
func (a *App) Discard() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.engine.Close()
	a.setStatus(StatusUpdater.SetIdle)
	return err
}

// OnChange follows engine changes the user did not trigger through the
// app, such as the end of the recording or a playback device failure.
func (a *App) OnChange(c engine.Change) {
	if c.Kind != engine.PlaybackChanged {
		return
	}
	switch {
	case c.Err != nil:
		a.setStatus(StatusUpdater.SetError)
	case c.State == playback.Playing:
		a.setStatus(StatusUpdater.SetPlaying)
	case c.State == playback.Paused:
		a.setStatus(StatusUpdater.SetReady)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsRecording() {
		if err := a.engine.StopRecording(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Recording stopped with error")
		}
	}
	if a.hotkeys != nil {
		if err := a.hotkeys.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to release hotkeys")
		}
	}

	return a.engine.Close()
}

// Tray actions

func (a *App) SetMode(mode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch mode {
	case config.ModeToggle, config.ModePushToTalk:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	a.cfg.Mode = mode
	return a.cfg.Save()
}

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsRecording() {
		return fmt.Errorf("cannot change while recording")
	}

	a.cfg.Audio.DeviceID = id
	a.engine.SetDevice(id)
	return a.cfg.Save()
}

func (a *App) SetCopyPath(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg.Export.CopyPathToClipboard = enabled
	return a.cfg.Save()
}

func (a *App) IsRecording() bool {
	return a.engine.IsRecording()
}

func (a *App) IsPlaying() bool {
	return a.engine.IsPlaying()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.capture.ListDevices()
}

func (a *App) setStatus(update func(StatusUpdater)) {
	if a.status != nil {
		update(a.status)
	}
}
