// Package playback renders a finished recording, keeps the play position in
// sync with the decode cursor and loops over the user's selection.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/petems/snip-tray/internal/audio"
	"github.com/rs/zerolog"
)

// ErrPlaybackDevice is reported when the output device cannot start or
// fails while rendering.
var ErrPlaybackDevice = errors.New("playback device error")

const (
	// PollInterval is the position refresh period while playing.
	PollInterval = 25 * time.Millisecond
	// MinLoopSpan is the narrowest selection that loops.
	MinLoopSpan = 200 * time.Millisecond
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Ready
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Origin tags a position update with its source. Only user updates seek.
type Origin int

const (
	OriginUser Origin = iota
	OriginPlayback
)

func (o Origin) String() string {
	if o == OriginPlayback {
		return "playback"
	}
	return "user"
}

// EventKind distinguishes controller notifications.
type EventKind int

const (
	StateChanged EventKind = iota
	PositionChanged
	Looped
)

// Event is a controller notification.
type Event struct {
	Kind     EventKind
	State    State
	Position time.Duration
	Origin   Origin
	Err      error
}

type Config struct {
	Device    Device
	Selection *Selection
	// PollInterval overrides the 25 ms position refresh.
	PollInterval time.Duration
	// FrameSize is the level meter window in sample-frames.
	FrameSize int
	// OnEvent receives notifications. It is called without internal locks
	// held but must not block.
	OnEvent func(Event)
	Logger  zerolog.Logger
}

// Controller drives a Device from a Stream over the current recording.
//
// Two locks are used: ops serializes state transitions (Load, Play, Pause,
// Close and end-of-stream handling), mu guards the decode cursor, the
// level meter and the end-of-stream flag, and is shared by the render
// callback, the poll goroutine and user seeks.
type Controller struct {
	device    Device
	selection *Selection
	interval  time.Duration
	frameSize int
	onEvent   func(Event)
	log       zerolog.Logger

	ops   sync.Mutex
	state State
	poll  chan struct{} // current run; nil unless playing

	mu     sync.Mutex
	stream *Stream
	agg    *audio.Aggregator
	ended  bool
	err    error
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		device:    cfg.Device,
		selection: cfg.Selection,
		interval:  cfg.PollInterval,
		frameSize: cfg.FrameSize,
		onEvent:   cfg.OnEvent,
		log:       cfg.Logger,
	}
	if c.interval <= 0 {
		c.interval = PollInterval
	}
	if c.selection == nil {
		c.selection = NewSelection()
	}
	return c
}

// Load prepares playback of buf from position zero and moves to Ready.
// Any current playback is stopped first.
func (c *Controller) Load(buf *audio.RecordingBuffer) {
	c.ops.Lock()
	if c.state == Playing {
		c.stopPollLocked()
		if err := c.device.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to stop output device")
		}
	}

	c.mu.Lock()
	c.stream = NewStream(buf)
	c.agg = audio.NewAggregator(c.frameSize)
	c.ended = false
	c.err = nil
	c.mu.Unlock()
	c.state = Ready
	c.ops.Unlock()

	c.log.Debug().
		Int64("bytes", buf.Len()).
		Dur("duration", buf.Duration()).
		Msg("Playback ready")

	c.emit(Event{Kind: StateChanged, State: Ready})
}

// Play starts or resumes rendering. It does nothing when no recording is
// loaded or playback is already running. After the end of the recording
// was reached, playback restarts from the beginning.
func (c *Controller) Play() error {
	c.ops.Lock()
	if c.state == Idle || c.state == Playing {
		c.ops.Unlock()
		return nil
	}

	c.mu.Lock()
	if c.ended || c.stream.Offset() >= c.stream.Length() {
		c.stream.SetOffset(0)
		c.agg.Clear()
		c.ended = false
	}
	format := c.stream.Format()
	c.err = nil
	c.mu.Unlock()

	// Each run gets its own poll channel; callbacks from an earlier run
	// find it replaced and do nothing.
	run := make(chan struct{})
	fail := func(err error) { c.fail(run, err) }
	if err := c.device.Start(format, beep.StreamerFunc(c.render), fail); err != nil {
		err = fmt.Errorf("%w: %v", ErrPlaybackDevice, err)
		c.state = Paused
		c.setErr(err)
		c.ops.Unlock()

		c.log.Error().Err(err).Msg("Failed to start playback")
		c.emit(Event{Kind: StateChanged, State: Paused, Err: err})
		return err
	}

	c.state = Playing
	c.poll = run
	go c.pollLoop(run)
	c.ops.Unlock()

	c.emit(Event{Kind: StateChanged, State: Playing})
	return nil
}

// Pause stops the device and keeps the position. It does nothing unless
// playing.
func (c *Controller) Pause() error {
	c.ops.Lock()
	if c.state != Playing {
		c.ops.Unlock()
		return nil
	}
	c.stopPollLocked()
	err := c.device.Stop()
	c.state = Paused
	c.ops.Unlock()

	c.emit(Event{Kind: StateChanged, State: Paused})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackDevice, err)
	}
	return nil
}

// Close releases the device and the decode stream and returns to Idle.
// Closing twice is a no-op.
func (c *Controller) Close() error {
	c.ops.Lock()
	if c.state == Idle {
		c.ops.Unlock()
		return nil
	}
	c.stopPollLocked()
	err := c.device.Close()

	c.mu.Lock()
	c.stream = nil
	c.agg = nil
	c.ended = false
	c.mu.Unlock()
	c.state = Idle
	c.ops.Unlock()

	c.emit(Event{Kind: StateChanged, State: Idle})
	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.state
}

// Position returns the playing time at the decode cursor.
func (c *Controller) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return 0
	}
	return c.stream.TimeOf(c.stream.Offset())
}

// Length returns the playing time of the loaded recording.
func (c *Controller) Length() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return 0
	}
	return c.stream.Duration()
}

// Offset returns the decode cursor as a byte offset.
func (c *Controller) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return 0
	}
	return c.stream.Offset()
}

// SetPosition publishes a new position. With OriginUser the decode cursor
// first seeks to the proportional byte offset of t clamped to the
// recording; OriginPlayback updates never move the cursor.
func (c *Controller) SetPosition(t time.Duration, origin Origin) {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return
	}
	total := c.stream.Duration()
	if t < 0 {
		t = 0
	}
	if t > total {
		t = total
	}
	if origin == OriginUser {
		c.stream.SetOffset(c.stream.OffsetOf(t))
		c.ended = false
	}
	c.mu.Unlock()

	c.emit(Event{Kind: PositionChanged, Position: t, Origin: origin})
}

// Levels returns the running peak of the samples rendered in the current
// meter window.
func (c *Controller) Levels() (left, right float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agg == nil {
		return 0, 0
	}
	return c.agg.Running()
}

// Err returns the last device error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// render is the device's streamer. It runs on the device goroutine.
func (c *Controller) render(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return 0, false
	}

	looped := false
	for i := range samples {
		if c.loopLocked() {
			looped = true
		}
		left, right, ok := c.stream.Next()
		if !ok {
			c.ended = true
			if i == 0 {
				return 0, false
			}
			return i, true
		}
		c.agg.Add(left, right)
		samples[i] = [2]float64{float64(left), float64(right)}
	}

	if looped {
		// Emitting from the audio goroutine must not block.
		go c.emit(Event{Kind: Looped})
	}
	return len(samples), true
}

// loopLocked seeks back to the selection start once the cursor reaches the
// selection end. Selections shorter than MinLoopSpan never loop.
func (c *Controller) loopLocked() bool {
	r := c.selection.Range()
	if r.Span() < MinLoopSpan {
		return false
	}
	end := c.stream.OffsetOf(r.End)
	if c.stream.Offset() < end {
		return false
	}
	c.agg.Clear()
	c.stream.SetOffset(c.stream.OffsetOf(r.Begin))
	return true
}

func (c *Controller) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.tick(stop) {
				return
			}
		}
	}
}

// tick publishes the cursor position and handles the end of the
// recording. It reports false once polling should stop.
func (c *Controller) tick(run <-chan struct{}) bool {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return false
	}
	pos := c.stream.TimeOf(c.stream.Offset())
	ended := c.ended
	c.mu.Unlock()

	c.SetPosition(pos, OriginPlayback)

	if ended {
		c.finish(run, nil)
		return false
	}
	return true
}

// fail is the device's failure callback for one run.
func (c *Controller) fail(run chan struct{}, err error) {
	err = fmt.Errorf("%w: %v", ErrPlaybackDevice, err)
	c.setErr(err)
	// The device goroutine calling fail is the one Stop waits for.
	go c.finish(run, err)
}

// finish moves a playing controller to Paused after the end of the
// recording or a device failure.
func (c *Controller) finish(run <-chan struct{}, cause error) {
	c.ops.Lock()
	if c.state != Playing || c.poll != run {
		c.ops.Unlock()
		return
	}
	c.stopPollLocked()
	if err := c.device.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to stop output device")
	}
	c.state = Paused
	c.ops.Unlock()

	if cause != nil {
		c.log.Error().Err(cause).Msg("Playback stopped")
	} else {
		c.log.Debug().Msg("Playback reached end of recording")
	}
	c.emit(Event{Kind: StateChanged, State: Paused, Err: cause})
}

func (c *Controller) stopPollLocked() {
	if c.poll != nil {
		close(c.poll)
		c.poll = nil
	}
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}
