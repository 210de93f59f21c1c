package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/snip-tray/internal/app"
	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/config"
	"github.com/petems/snip-tray/internal/engine"
	"github.com/petems/snip-tray/internal/hotkey"
	"github.com/petems/snip-tray/internal/logging"
	"github.com/petems/snip-tray/internal/metrics"
	"github.com/petems/snip-tray/internal/permissions"
	"github.com/petems/snip-tray/internal/playback"
	"github.com/petems/snip-tray/internal/share"
	"github.com/petems/snip-tray/internal/tray"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "snip-tray",
		Short: "Capture, loop and trim what your computer is playing",
		Long: `SnipTray sits in the system tray and records the audio your computer
is playing. Stop the recording to get a waveform, loop a selection
and save it as a trimmed WAV snippet.

The subcommands run the same waveform and trimming offline on WAV files.`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is the platform config directory)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config file")

	root.AddCommand(newDevicesCmd(opts))
	root.AddCommand(newInfoCmd())
	root.AddCommand(newPeaksCmd(opts))
	root.AddCommand(newTrimCmd(opts))
	return root
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadFrom(opts.configPath)
	}
	return config.Load()
}

func newLogger(opts *options, cfg *config.Config) zerolog.Logger {
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	return logging.NewWithLevel(level)
}

func runTray(ctx context.Context, opts *options) error {
	// Load config from XDG/Library/AppData
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger with configured level
	log := newLogger(opts, cfg)

	// macOS requires accessibility for hotkeys and screen recording for system audio
	if err := permissions.EnsurePermissions(log); err != nil {
		return fmt.Errorf("required permissions not granted: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize audio capture
	capture, err := audio.New(cfg.Audio)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer capture.Close()

	device, err := playback.NewPortAudioDevice(playback.DeviceConfig{
		Latency:         cfg.PlaybackLatency(),
		FramesPerBuffer: cfg.Playback.FramesPerBuffer,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, registry, log); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint stopped")
			}
		}()
	}

	eng := engine.New(engine.Config{
		Capture:              capture,
		DeviceID:             cfg.Audio.DeviceID,
		InitialBufferSeconds: cfg.Audio.InitialBufferSeconds,
		Device:               device,
		Metrics:              m,
		Logger:               log,
	})

	// Initialize hotkey manager
	hkManager, err := hotkey.New()
	if err != nil {
		return fmt.Errorf("failed to initialize hotkeys: %w", err)
	}

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, eng.Bus(), log, Version, Commit) // App reference set below

	application := app.New(app.Config{
		Engine:        eng,
		Capture:       capture,
		Hotkeys:       hkManager,
		Sharer:        share.New(),
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})
	eng.AddObserver(application)

	// Set app reference in tray
	trayUI.SetApp(application)

	if err := application.RegisterHotkey(); err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("SnipTray starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Start tray UI - MUST run on main thread
	runErr := trayUI.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if err := device.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release playback device")
	}
	return runErr
}
