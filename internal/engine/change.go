package engine

import (
	"fmt"
	"time"

	"github.com/petems/snip-tray/internal/playback"
	"github.com/petems/snip-tray/internal/waveform"
)

// Kind identifies what a Change reports.
type Kind int

const (
	RecordingChanged Kind = iota
	PlaybackChanged
	PositionChanged
	LengthChanged
	SelectionChanged
	WaveformChanged
	Looped
	Saved
)

func (k Kind) String() string {
	switch k {
	case RecordingChanged:
		return "recording"
	case PlaybackChanged:
		return "playback"
	case PositionChanged:
		return "position"
	case LengthChanged:
		return "length"
	case SelectionChanged:
		return "selection"
	case WaveformChanged:
		return "waveform"
	case Looped:
		return "looped"
	case Saved:
		return "saved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Change is a typed state delta. Only the fields relevant to Kind are set.
type Change struct {
	Kind Kind

	// RecordingChanged
	Recording bool

	// PlaybackChanged
	State   playback.State
	Playing bool

	// PositionChanged
	Position time.Duration
	Origin   playback.Origin

	// LengthChanged
	Length time.Duration

	// SelectionChanged
	Selection playback.Range

	// WaveformChanged. Each publication carries its own copy; Final marks
	// the summary of a finished pass.
	Waveform *waveform.Summary
	Final    bool

	// Saved
	Path  string
	Bytes int64

	// Err is set on PlaybackChanged after a device failure and on Saved
	// when the write failed.
	Err error
}

// Observer is notified synchronously of every change. It is called from
// whichever goroutine produced the change and must not block.
type Observer interface {
	OnChange(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) OnChange(c Change) {
	f(c)
}
