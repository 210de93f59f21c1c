package playback

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/petems/snip-tray/internal/audio"
	"github.com/rs/zerolog"
)

// fakeDevice records calls and lets tests pull samples the way an output
// device would.
type fakeDevice struct {
	mu       sync.Mutex
	src      beep.Streamer
	fail     func(error)
	format   beep.Format
	startErr error
	starts   int
	stops    int
	closes   int
}

func (d *fakeDevice) Start(f beep.Format, src beep.Streamer, fail func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.src = src
	d.fail = fail
	d.format = f
	d.starts++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) pull(t *testing.T, frames int) int {
	t.Helper()
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		t.Fatal("device was never started")
	}
	buf := make([][2]float64, frames)
	n, _ := src.Stream(buf)
	return n
}

func (d *fakeDevice) counts() (starts, stops, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops, d.closes
}

const testRate = 8000

// twoSecondRecording is 16000 mono float frames (4 bytes each) at 8 kHz.
func twoSecondRecording(t *testing.T, value func(frame int) float32) *audio.RecordingBuffer {
	t.Helper()
	f := audio.Format{Encoding: audio.EncodingFloat, SampleRate: testRate, Channels: 1, BitsPerSample: 32}
	samples := make([]float32, 2*testRate)
	for i := range samples {
		samples[i] = value(i)
	}
	buf := audio.NewRecordingBuffer(f, len(samples)*4)
	if _, err := buf.Write(audio.EncodeFloat32(nil, samples)); err != nil {
		t.Fatal(err)
	}
	buf.Seal()
	return buf
}

func constant(v float32) func(int) float32 {
	return func(int) float32 { return v }
}

type harness struct {
	c      *Controller
	dev    *fakeDevice
	sel    *Selection
	events chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dev:    &fakeDevice{},
		sel:    NewSelection(),
		events: make(chan Event, 256),
	}
	h.c = NewController(Config{
		Device:    h.dev,
		Selection: h.sel,
		// Ticks are driven by the tests.
		PollInterval: time.Hour,
		OnEvent: func(ev Event) {
			select {
			case h.events <- ev:
			default:
			}
		},
		Logger: zerolog.Nop(),
	})
	return h
}

func (h *harness) currentRun() chan struct{} {
	h.c.ops.Lock()
	defer h.c.ops.Unlock()
	return h.c.poll
}

func (h *harness) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestControllerStateTransitions(t *testing.T) {
	h := newHarness(t)

	if h.c.State() != Idle {
		t.Fatalf("expected Idle, got %s", h.c.State())
	}
	if err := h.c.Play(); err != nil {
		t.Fatalf("Play on Idle returned error: %v", err)
	}
	if h.c.State() != Idle {
		t.Fatal("Play on Idle should do nothing")
	}

	h.c.Load(twoSecondRecording(t, constant(0.1)))
	if h.c.State() != Ready || h.c.Position() != 0 {
		t.Fatalf("expected Ready at 0, got %s at %s", h.c.State(), h.c.Position())
	}
	if h.c.Length() != 2*time.Second {
		t.Fatalf("expected 2s length, got %s", h.c.Length())
	}

	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	if h.c.State() != Playing {
		t.Fatalf("expected Playing, got %s", h.c.State())
	}
	if h.dev.format.SampleRate != testRate || h.dev.format.NumChannels != 2 {
		t.Fatalf("unexpected device format %+v", h.dev.format)
	}

	h.dev.pull(t, 800)
	if err := h.c.Pause(); err != nil {
		t.Fatal(err)
	}
	if h.c.State() != Paused {
		t.Fatalf("expected Paused, got %s", h.c.State())
	}
	if h.c.Position() != 100*time.Millisecond {
		t.Fatalf("expected position retained at 100ms, got %s", h.c.Position())
	}

	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	if h.c.Position() != 100*time.Millisecond {
		t.Fatalf("expected resume from 100ms, got %s", h.c.Position())
	}

	if err := h.c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Close(); err != nil {
		t.Fatal(err)
	}
	if h.c.State() != Idle || h.c.Length() != 0 {
		t.Fatalf("expected Idle with nothing loaded, got %s", h.c.State())
	}

	starts, stops, closes := h.dev.counts()
	if starts != 2 || stops != 1 || closes != 1 {
		t.Fatalf("unexpected device calls: starts=%d stops=%d closes=%d", starts, stops, closes)
	}
}

func TestControllerUserSeek(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))

	tests := []struct {
		name   string
		to     time.Duration
		offset int64
		pos    time.Duration
	}{
		{"one second", time.Second, 32000, time.Second},
		{"quarter second", 250 * time.Millisecond, 8000, 250 * time.Millisecond},
		{"past the end", 5 * time.Second, 64000, 2 * time.Second},
		{"negative", -time.Second, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.c.SetPosition(tt.to, OriginUser)
			if got := h.c.Offset(); got != tt.offset {
				t.Fatalf("expected offset %d, got %d", tt.offset, got)
			}
			if got := h.c.Position(); got != tt.pos {
				t.Fatalf("expected position %s, got %s", tt.pos, got)
			}
		})
	}
}

func TestControllerPlaybackOriginDoesNotSeek(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	h.c.SetPosition(time.Second, OriginUser)

	h.c.SetPosition(300*time.Millisecond, OriginPlayback)

	if got := h.c.Offset(); got != 32000 {
		t.Fatalf("playback-origin update moved the cursor to %d", got)
	}
	ev := h.waitFor(t, func(ev Event) bool {
		return ev.Kind == PositionChanged && ev.Origin == OriginPlayback
	})
	if ev.Position != 300*time.Millisecond {
		t.Fatalf("expected published 300ms, got %s", ev.Position)
	}
}

func TestControllerLoopsOverSelection(t *testing.T) {
	h := newHarness(t)
	// Loud frames right before the selection end.
	h.c.Load(twoSecondRecording(t, func(i int) float32 {
		if i >= 5990 && i < 6000 {
			return 0.9
		}
		return 0.1
	}))
	h.sel.Set(Range{Begin: 500 * time.Millisecond, End: 750 * time.Millisecond})
	h.c.SetPosition(500*time.Millisecond, OriginUser)
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}

	// Frames 4000..5999 reach the selection end exactly.
	if n := h.dev.pull(t, 2000); n != 2000 {
		t.Fatalf("expected 2000 frames, got %d", n)
	}
	if got := h.c.Offset(); got != 24000 {
		t.Fatalf("expected cursor at selection end 24000, got %d", got)
	}
	if left, _ := h.c.Levels(); left != 0.9 {
		t.Fatalf("expected injected peak 0.9 before the loop, got %f", left)
	}

	h.dev.pull(t, 1)

	if got := h.c.Offset(); got != 16000+4 {
		t.Fatalf("expected cursor one frame past selection begin, got %d", got)
	}
	if left, right := h.c.Levels(); left != 0.1 || right != 0.1 {
		t.Fatalf("expected meter reset after loop, got (%f, %f)", left, right)
	}
	h.waitFor(t, func(ev Event) bool { return ev.Kind == Looped })
}

func TestControllerNarrowSelectionDoesNotLoop(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	h.sel.Set(Range{Begin: 500 * time.Millisecond, End: 550 * time.Millisecond})
	h.c.SetPosition(500*time.Millisecond, OriginUser)
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}

	h.dev.pull(t, 2000)

	if got := h.c.Offset(); got != 24000 {
		t.Fatalf("expected playback to run past a 50ms selection, cursor at %d", got)
	}
}

func TestControllerEmptySelectionPlaysThrough(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}

	if n := h.dev.pull(t, 4000); n != 4000 {
		t.Fatalf("expected 4000 frames, got %d", n)
	}
	if h.c.Position() != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %s", h.c.Position())
	}
}

func TestControllerEndOfRecording(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	run := h.currentRun()

	if n := h.dev.pull(t, 2*testRate+100); n != 2*testRate {
		t.Fatalf("expected the whole recording, got %d frames", n)
	}
	if n := h.dev.pull(t, 10); n != 0 {
		t.Fatalf("expected a drained stream, got %d frames", n)
	}

	if h.c.tick(run) {
		t.Fatal("expected polling to stop at the end of the recording")
	}
	if h.c.State() != Paused {
		t.Fatalf("expected Paused at the end, got %s", h.c.State())
	}
	if h.c.Position() != 2*time.Second {
		t.Fatalf("expected position at the end, got %s", h.c.Position())
	}

	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	if h.c.Offset() != 0 {
		t.Fatalf("expected restart from 0, got %d", h.c.Offset())
	}
}

func TestControllerStartFailure(t *testing.T) {
	h := newHarness(t)
	h.dev.startErr = errors.New("exclusive mode")
	h.c.Load(twoSecondRecording(t, constant(0.1)))

	err := h.c.Play()
	if !errors.Is(err, ErrPlaybackDevice) {
		t.Fatalf("expected ErrPlaybackDevice, got %v", err)
	}
	if h.c.State() != Paused {
		t.Fatalf("expected Paused, got %s", h.c.State())
	}
	if !errors.Is(h.c.Err(), ErrPlaybackDevice) {
		t.Fatalf("expected Err to report the failure, got %v", h.c.Err())
	}
}

func TestControllerDeviceFailureWhileRendering(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	h.dev.pull(t, 100)

	h.dev.fail(errors.New("device unplugged"))

	ev := h.waitFor(t, func(ev Event) bool {
		return ev.Kind == StateChanged && ev.State == Paused
	})
	if !errors.Is(ev.Err, ErrPlaybackDevice) {
		t.Fatalf("expected ErrPlaybackDevice in event, got %v", ev.Err)
	}
	if h.c.State() != Paused {
		t.Fatalf("expected Paused, got %s", h.c.State())
	}
	if h.c.Offset() != 400 {
		t.Fatalf("expected position retained at 400, got %d", h.c.Offset())
	}
}

func TestControllerPollPublishesPlaybackPosition(t *testing.T) {
	dev := &fakeDevice{}
	events := make(chan Event, 256)
	c := NewController(Config{
		Device:       dev,
		PollInterval: 5 * time.Millisecond,
		OnEvent: func(ev Event) {
			select {
			case events <- ev:
			default:
			}
		},
		Logger: zerolog.Nop(),
	})
	c.Load(twoSecondRecording(t, constant(0.1)))
	if err := c.Play(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	dev.pull(t, 8000)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == PositionChanged && ev.Origin == OriginPlayback && ev.Position == time.Second {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for a polled position")
		}
	}
}

func TestControllerConcurrentSeeksAndRendering(t *testing.T) {
	h := newHarness(t)
	h.c.Load(twoSecondRecording(t, constant(0.1)))
	h.sel.Set(Range{Begin: 250 * time.Millisecond, End: 1500 * time.Millisecond})
	if err := h.c.Play(); err != nil {
		t.Fatal(err)
	}
	run := h.currentRun()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.dev.pull(t, 64)
		}
	}()
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(1))
		for i := 0; i < 200; i++ {
			h.c.SetPosition(time.Duration(r.Int63n(int64(2*time.Second))), OriginUser)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.c.tick(run)
		}
	}()
	wg.Wait()

	off := h.c.Offset()
	if off < 0 || off > 64000 || off%4 != 0 {
		t.Fatalf("cursor left at invalid offset %d", off)
	}
}
