// Package waveform reduces a finished recording to a fixed-size stereo
// amplitude summary suitable for drawing.
package waveform

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/rs/zerolog"
)

const (
	// Points is the number of stereo pairs in every summary.
	Points = 2000
	// PublishEvery is the snapshot cadence, in downsampler frames.
	PublishEvery = 3000
)

// NoData marks a bucket the pass never reached. Renderers skip it.
const NoData float32 = -math.MaxFloat32

// Summary holds left/right peak pairs, interleaved. It is an array so that
// every published snapshot is an independent copy.
type Summary [Points * 2]float32

// NewSummary returns a summary with every bucket set to NoData.
func NewSummary() Summary {
	var s Summary
	for i := range s {
		s[i] = NoData
	}
	return s
}

// Pair returns the peaks of bucket i.
func (s *Summary) Pair(i int) (left, right float32) {
	return s[2*i], s[2*i+1]
}

// HasData reports whether bucket i was committed.
func (s *Summary) HasData(i int) bool {
	return s[2*i] != NoData || s[2*i+1] != NoData
}

// Filled returns the number of committed buckets.
func (s *Summary) Filled() int {
	n := 0
	for i := 0; i < Points; i++ {
		if s.HasData(i) {
			n++
		}
	}
	return n
}

// Config configures a Downsampler. Zero values select the defaults.
type Config struct {
	// FrameSize is the number of sample-frames per downsampler frame.
	FrameSize int
	// PublishEvery is the snapshot cadence in downsampler frames.
	PublishEvery int
	// Publish receives in-progress snapshots and, with final set, the
	// finished summary. It is called on the goroutine running the pass.
	Publish func(s Summary, final bool)
	Logger  zerolog.Logger
}

// Downsampler produces a Summary from a sealed recording.
type Downsampler struct {
	frameSize    int
	publishEvery int
	publish      func(Summary, bool)
	log          zerolog.Logger
}

func New(cfg Config) *Downsampler {
	d := &Downsampler{
		frameSize:    cfg.FrameSize,
		publishEvery: cfg.PublishEvery,
		publish:      cfg.Publish,
		log:          cfg.Logger,
	}
	if d.frameSize <= 0 {
		d.frameSize = audio.FrameSize
	}
	if d.publishEvery <= 0 {
		d.publishEvery = PublishEvery
	}
	return d
}

// Boundaries returns the decimated index each bucket must exceed before it
// is committed, for a recording of frames downsampler frames. Bucket i ends
// at round(frames*(i+1)/Points).
func Boundaries(frames int64) [Points]int64 {
	var b [Points]int64
	for i := range b {
		b[i] = int64(math.Round(float64(frames) * float64(i+1) / Points))
	}
	return b
}

// Run reads buf from the start through a fresh Aggregator and returns the
// summary. The pass only reads; running it twice over the same buffer
// yields identical results.
func (d *Downsampler) Run(ctx context.Context, buf *audio.RecordingBuffer) (Summary, error) {
	summary := NewSummary()
	if buf == nil {
		return summary, nil
	}

	f := buf.Format()
	align := f.BlockAlign()
	if align <= 0 {
		return summary, fmt.Errorf("invalid recording format: %s", f)
	}

	samples := buf.Frames()
	frames := (samples + int64(d.frameSize) - 1) / int64(d.frameSize)
	boundaries := Boundaries(frames)

	p := &pass{
		summary:    &summary,
		boundaries: &boundaries,
		maxLeft:    NoData,
		maxRight:   NoData,
	}

	agg := audio.NewAggregator(d.frameSize)
	reader := buf.NewReader()
	chunk := make([]byte, d.frameSize*align)

	for p.current < Points {
		n, err := io.ReadFull(reader, chunk)
		n -= n % align
		for off := 0; off < n; off += align {
			agg.Add(audio.DecodeFrame(f, chunk[off:off+align]))
			if agg.Pending() == 0 {
				p.frame(agg.Last())
				if p.read%int64(d.publishEvery) == 0 {
					if err := ctx.Err(); err != nil {
						return summary, err
					}
					d.emit(summary, false)
				}
				p.read++
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("failed to read recording: %w", err)
		}
	}

	if p.current < Points {
		if agg.Flush() {
			p.frame(agg.Last())
		}
		p.commitPending()
	}

	d.log.Debug().
		Int64("frames", frames).
		Int("buckets", summary.Filled()).
		Msg("Waveform generated")

	d.emit(summary, true)
	return summary, nil
}

func (d *Downsampler) emit(s Summary, final bool) {
	if d.publish != nil {
		d.publish(s, final)
	}
}

// pass is the bucket state of one Run.
type pass struct {
	summary    *Summary
	boundaries *[Points]int64

	current  int
	read     int64
	maxLeft  float32
	maxRight float32
	pending  bool
}

// frame folds one downsampler frame peak into the current bucket and
// commits the bucket once the decimated index passes its boundary. Frames
// left over at the end are committed by commitPending.
func (p *pass) frame(left, right float32) {
	if p.current >= Points {
		return
	}
	if left > p.maxLeft {
		p.maxLeft = left
	}
	if right > p.maxRight {
		p.maxRight = right
	}
	p.pending = true

	if p.read > p.boundaries[p.current] {
		p.commit()
	}
}

func (p *pass) commitPending() {
	if p.pending && p.current < Points {
		p.commit()
	}
}

func (p *pass) commit() {
	p.summary[2*p.current] = p.maxLeft
	p.summary[2*p.current+1] = p.maxRight
	p.maxLeft = NoData
	p.maxRight = NoData
	p.pending = false
	p.current++
}
