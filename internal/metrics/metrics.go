// Package metrics exposes Prometheus instrumentation for capture, playback
// and export.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics contains all Prometheus metrics for the snipper
type Metrics struct {
	// Capture metrics
	CapturedBytes   prometheus.Counter
	Recordings      prometheus.Counter
	RecordingLength prometheus.Histogram

	// Waveform metrics
	WaveformDuration prometheus.Histogram

	// Playback metrics
	LoopSeeks prometheus.Counter

	// Export metrics
	Exports        prometheus.Counter
	ExportFailures prometheus.Counter
	ExportedBytes  prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and the offline commands use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CapturedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_captured_bytes_total",
			Help: "Total number of sample bytes delivered by the capture device",
		}),
		Recordings: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_recordings_total",
			Help: "Total number of finished recordings",
		}),
		RecordingLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniptray_recording_length_seconds",
			Help:    "Length of finished recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5 minutes
		}),
		WaveformDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniptray_waveform_pass_duration_seconds",
			Help:    "Time spent building the waveform summary of a recording",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		LoopSeeks: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_loop_seeks_total",
			Help: "Total number of times playback jumped back to the selection start",
		}),
		Exports: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_exports_total",
			Help: "Total number of snippets saved",
		}),
		ExportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_export_failures_total",
			Help: "Total number of snippet saves that failed",
		}),
		ExportedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniptray_exported_bytes_total",
			Help: "Total number of sample bytes written to snippets",
		}),
	}
}

// AddCaptured counts bytes delivered by the capture device.
func (m *Metrics) AddCaptured(n int) {
	m.CapturedBytes.Add(float64(n))
}

// RecordRecording records a finished recording of the given length.
func (m *Metrics) RecordRecording(length time.Duration) {
	m.Recordings.Inc()
	m.RecordingLength.Observe(length.Seconds())
}

// RecordWaveformPass records how long a waveform pass took.
func (m *Metrics) RecordWaveformPass(d time.Duration) {
	m.WaveformDuration.Observe(d.Seconds())
}

// RecordLoop increments the loop seek counter.
func (m *Metrics) RecordLoop() {
	m.LoopSeeks.Inc()
}

// AddExported counts bytes written to a snippet.
func (m *Metrics) AddExported(n int) {
	m.ExportedBytes.Add(float64(n))
}

// RecordExport records the outcome of a save.
func (m *Metrics) RecordExport(err error) {
	if err != nil {
		m.ExportFailures.Inc()
		return
	}
	m.Exports.Inc()
}

// Serve exposes the gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
