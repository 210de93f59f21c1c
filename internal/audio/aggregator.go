package audio

import "math"

// FrameSize is the number of sample-frames reduced into one peak value.
// It matches the analysis window used for waveform bucketing.
const FrameSize = 2048

// Aggregator reduces a stream of stereo samples into the peak absolute
// magnitude per channel over consecutive windows of frameSize samples.
//
// Aggregator is not safe for concurrent use; owners serialize access.
type Aggregator struct {
	frameSize int
	count     int
	left      float32
	right     float32

	lastLeft  float32
	lastRight float32
	frames    int
}

// NewAggregator returns an aggregator finalizing a peak every frameSize samples.
// A non-positive frameSize falls back to FrameSize.
func NewAggregator(frameSize int) *Aggregator {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &Aggregator{frameSize: frameSize}
}

// Add folds one sample pair into the running peak. NaN input propagates.
func (a *Aggregator) Add(left, right float32) {
	a.left = peak(a.left, left)
	a.right = peak(a.right, right)
	a.count++
	if a.count >= a.frameSize {
		a.finalize()
	}
}

// Clear restarts the current window. Finalized peaks are kept.
func (a *Aggregator) Clear() {
	a.left = 0
	a.right = 0
	a.count = 0
}

// Flush finalizes a partially filled window. It reports false when the
// window was empty.
func (a *Aggregator) Flush() bool {
	if a.count == 0 {
		return false
	}
	a.finalize()
	return true
}

// Running returns the peak of the window in progress.
func (a *Aggregator) Running() (left, right float32) {
	return a.left, a.right
}

// Last returns the most recently finalized window peak.
func (a *Aggregator) Last() (left, right float32) {
	return a.lastLeft, a.lastRight
}

// Frames returns how many windows have been finalized.
func (a *Aggregator) Frames() int {
	return a.frames
}

// Pending returns the number of samples in the window in progress.
func (a *Aggregator) Pending() int {
	return a.count
}

func (a *Aggregator) finalize() {
	a.lastLeft = a.left
	a.lastRight = a.right
	a.frames++
	a.left = 0
	a.right = 0
	a.count = 0
}

func peak(current, sample float32) float32 {
	return float32(math.Max(float64(current), math.Abs(float64(sample))))
}
