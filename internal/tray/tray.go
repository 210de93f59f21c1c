package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/petems/snip-tray/internal/app"
	"github.com/petems/snip-tray/internal/config"
	"github.com/petems/snip-tray/internal/engine"
	"github.com/petems/snip-tray/internal/logging"
	"github.com/rs/zerolog"
)

// dotInterval is the recording animation period.
const dotInterval = time.Second

type UI struct {
	app     *app.App
	cfg     *config.Config
	bus     *engine.Bus
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mRecord   *systray.MenuItem
	mPlay     *systray.MenuItem
	mPause    *systray.MenuItem
	mSave     *systray.MenuItem
	mDiscard  *systray.MenuItem
	mMode     *systray.MenuItem
	mDevices  *systray.MenuItem
	mCopyPath *systray.MenuItem

	mu        sync.Mutex
	animation chan struct{}
	position  time.Duration
	length    time.Duration
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
}

func (u *UI) SetReady() {
	u.updateStatus("ready")
}

func (u *UI) SetPlaying() {
	u.updateStatus("playing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application *app.App, cfg *config.Config, bus *engine.Bus, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		bus:     bus,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Loopback audio snipper")

	// Build menu
	u.mRecord = systray.AddMenuItem("Record", "Start capturing system audio")
	u.mPlay = systray.AddMenuItem("Play", "Play the recording or the selection loop")
	u.mPause = systray.AddMenuItem("Pause", "Pause playback")
	u.mSave = systray.AddMenuItem("Save Snippet", "Save the selection, or the whole recording")
	u.mDiscard = systray.AddMenuItem("Discard", "Drop the recording")
	u.setRecordingControls(false, false)
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeTitle(u.cfg.Mode), "Toggle between modes")
	u.mDevices = systray.AddMenuItem("Capture Device", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	u.mCopyPath = systray.AddMenuItemCheckbox("Copy Path After Save", "Put the saved file's path on the clipboard", u.cfg.Export.CopyPathToClipboard)

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About SnipTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
	if u.bus != nil {
		go u.watch(u.bus.Subscribe())
	}
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRecord.ClickedCh:
			u.app.ToggleRecording()
		case <-u.mPlay.ClickedCh:
			if err := u.app.Play(); err != nil {
				u.log.Error().Err(err).Msg("Failed to play")
			}
		case <-u.mPause.ClickedCh:
			if err := u.app.Pause(); err != nil {
				u.log.Error().Err(err).Msg("Failed to pause")
			}
		case <-u.mSave.ClickedCh:
			u.save()
		case <-u.mDiscard.ClickedCh:
			if err := u.app.Discard(); err != nil {
				u.log.Error().Err(err).Msg("Failed to discard recording")
			}
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-u.mCopyPath.ClickedCh:
			u.toggleCopyPath()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// watch follows engine changes to keep the menu and tooltip current.
func (u *UI) watch(l *engine.Listener) {
	for {
		select {
		case <-l.Done():
			return
		case c := <-l.C:
			u.apply(c)
		}
	}
}

func (u *UI) apply(c engine.Change) {
	switch c.Kind {
	case engine.RecordingChanged:
		u.setRecordingControls(c.Recording, !c.Recording)
	case engine.LengthChanged:
		u.mu.Lock()
		u.length = c.Length
		u.mu.Unlock()
		u.setRecordingControls(false, c.Length > 0)
		u.refreshTooltip()
	case engine.PositionChanged:
		u.mu.Lock()
		u.position = c.Position
		u.mu.Unlock()
		u.refreshTooltip()
	case engine.Saved:
		if c.Err == nil && c.Path != "" {
			systray.SetTooltip("Saved " + c.Path)
		}
	}
}

func (u *UI) refreshTooltip() {
	u.mu.Lock()
	pos, length := u.position, u.length
	u.mu.Unlock()
	if length <= 0 {
		systray.SetTooltip("Loopback audio snipper")
		return
	}
	systray.SetTooltip(formatPosition(pos, length))
}

func (u *UI) setRecordingControls(recording, loaded bool) {
	if recording {
		u.mRecord.SetTitle("Stop")
	} else {
		u.mRecord.SetTitle("Record")
	}
	for _, item := range []*systray.MenuItem{u.mPlay, u.mPause, u.mSave, u.mDiscard} {
		if loaded {
			item.Enable()
		} else {
			item.Disable()
		}
	}
}

func (u *UI) save() {
	path, err := u.app.SaveSnippet()
	switch {
	case err != nil:
		u.log.Error().Err(err).Msg("Failed to save snippet")
	case path == "":
		u.log.Info().Msg("Nothing to save")
	default:
		u.log.Info().Str("path", path).Msg("Saved snippet")
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	var mu sync.Mutex
	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Failed to change capture device")
					continue
				}
				mu.Lock()
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				mu.Unlock()
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed capture device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) toggleMode() {
	oldMode := u.cfg.Mode
	newMode := config.ModePushToTalk
	if oldMode == config.ModePushToTalk {
		newMode = config.ModeToggle
	}
	if err := u.app.SetMode(newMode); err != nil {
		u.log.Error().Err(err).Msg("Failed to change mode")
		return
	}
	u.mMode.SetTitle(modeTitle(newMode))
	u.log.Info().Str("from", oldMode).Str("to", newMode).Msg("Changed mode")
}

func (u *UI) toggleCopyPath() {
	enabled := !u.cfg.Export.CopyPathToClipboard
	if err := u.app.SetCopyPath(enabled); err != nil {
		u.log.Error().Err(err).Msg("Failed to save setting")
	}
	if enabled {
		u.mCopyPath.Check()
		u.log.Info().Msg("Enabled copying the snippet path after save")
	} else {
		u.mCopyPath.Uncheck()
		u.log.Info().Msg("Disabled copying the snippet path after save")
	}
}

func (u *UI) openLogs() {
	name, args := openCommand(runtime.GOOS, logging.Path())
	if err := exec.Command(name, args...).Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	u.log.Info().
		Str("version", u.version).
		Str("commit", u.commit).
		Msg("SnipTray: capture, loop and trim what your computer is playing")
}

func (u *UI) onExit() {
	u.stopAnimation()
}

// updateStatus sets the tray title with a status indicator
func (u *UI) updateStatus(status string) {
	u.stopAnimation()
	if status == "recording" {
		u.startAnimation()
		return
	}
	systray.SetTitle(fmt.Sprintf("✂️ %s", emojiForStatus(status)))
}

// startAnimation cycles "Recording", "Recording.", ... once a second
// until the status changes.
func (u *UI) startAnimation() {
	stop := make(chan struct{})
	u.mu.Lock()
	u.animation = stop
	u.mu.Unlock()

	go func() {
		ticker := time.NewTicker(dotInterval)
		defer ticker.Stop()
		for dots := 0; ; dots++ {
			systray.SetTitle(fmt.Sprintf("✂️ %s %s", emojiForStatus("recording"), recordingTitle(dots)))
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (u *UI) stopAnimation() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.animation != nil {
		close(u.animation)
		u.animation = nil
	}
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - capturing
	case "ready":
		return "🟡" // Yellow - recording loaded
	case "playing":
		return "▶️" // Playing
	case "idle":
		return "🟢" // Green - ready to record
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

// recordingTitle returns the animated recording label for a tick.
func recordingTitle(tick int) string {
	return "Recording" + strings.Repeat(".", tick%4)
}

func modeTitle(mode string) string {
	if mode == config.ModePushToTalk {
		return "Mode: Push-to-Talk"
	}
	return "Mode: Toggle"
}

// formatPosition renders "m:ss.t / m:ss.t".
func formatPosition(pos, length time.Duration) string {
	return clock(pos) + " / " + clock(length)
}

func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int(d / (100 * time.Millisecond))
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

// openCommand returns the command that opens path with its default
// application.
func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}
