package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/export"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/petems/snip-tray/internal/waveform"
	"github.com/rs/zerolog"
)

// readRecording loads a WAV file into a sealed buffer.
func readRecording(path string) (*audio.RecordingBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf, err := audio.ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf, nil
}

type fileInfo struct {
	Path          string `yaml:"path"`
	Encoding      string `yaml:"encoding"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	BitsPerSample int    `yaml:"bits_per_sample"`
	BlockAlign    int    `yaml:"block_align"`
	Frames        int64  `yaml:"frames"`
	Bytes         int64  `yaml:"bytes"`
	Duration      string `yaml:"duration"`
}

func describe(path string, buf *audio.RecordingBuffer) fileInfo {
	f := buf.Format()
	return fileInfo{
		Path:          path,
		Encoding:      f.Encoding.String(),
		SampleRate:    f.SampleRate,
		Channels:      f.Channels,
		BitsPerSample: f.BitsPerSample,
		BlockAlign:    f.BlockAlign(),
		Frames:        buf.Frames(),
		Bytes:         buf.Len(),
		Duration:      buf.Duration().String(),
	}
}

type bucket struct {
	Index int     `json:"index"`
	Left  float32 `json:"left"`
	Right float32 `json:"right"`
}

type peaksReport struct {
	Points   int      `json:"points"`
	Duration string   `json:"duration"`
	Filled   int      `json:"filled"`
	Buckets  []bucket `json:"buckets"`
}

// computePeaks runs the waveform pass over buf. Buckets without data are
// left out of the report.
func computePeaks(ctx context.Context, buf *audio.RecordingBuffer, frameSize int, log zerolog.Logger) (peaksReport, error) {
	d := waveform.New(waveform.Config{FrameSize: frameSize, Logger: log})
	summary, err := d.Run(ctx, buf)
	if err != nil {
		return peaksReport{}, fmt.Errorf("waveform pass failed: %w", err)
	}

	report := peaksReport{
		Points:   waveform.Points,
		Duration: buf.Duration().String(),
		Filled:   summary.Filled(),
		Buckets:  make([]bucket, 0, summary.Filled()),
	}
	for i := 0; i < waveform.Points; i++ {
		if !summary.HasData(i) {
			continue
		}
		left, right := summary.Pair(i)
		report.Buckets = append(report.Buckets, bucket{Index: i, Left: left, Right: right})
	}
	return report, nil
}

// trimRange builds the export range from the trim flags. A zero end means
// the end of the recording.
func trimRange(buf *audio.RecordingBuffer, begin, end time.Duration) (playback.Range, error) {
	if begin < 0 || end < 0 {
		return playback.Range{}, fmt.Errorf("begin and end must not be negative")
	}
	if end == 0 {
		end = buf.Duration()
	}
	r := playback.Range{Begin: begin, End: end}
	if begin == 0 && end == buf.Duration() {
		// The whole recording.
		return playback.Range{}, nil
	}
	if r.Empty() {
		return r, fmt.Errorf("end %s must be after begin %s", end, begin)
	}
	return r, nil
}

func trimFile(in, out string, begin, end time.Duration, log zerolog.Logger) (export.Result, error) {
	buf, err := readRecording(in)
	if err != nil {
		return export.Result{}, err
	}
	r, err := trimRange(buf, begin, end)
	if err != nil {
		return export.Result{}, err
	}
	return export.New(export.Config{Logger: log}).Export(buf, r, out)
}
