package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/petems/snip-tray/internal/audio"
	"github.com/petems/snip-tray/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long: `List the capture devices of the configured backend. The ID column is
the value for audio.device_id in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			capture, err := audio.New(cfg.Audio)
			if err != nil {
				return fmt.Errorf("failed to initialize audio: %w", err)
			}
			defer capture.Close()

			devices, err := capture.ListDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\n", marker, d.ID, d.Name)
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.wav>",
		Short: "Describe a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readRecording(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(describe(args[0], buf))
		},
	}
}

func newPeaksCmd(opts *options) *cobra.Command {
	var frameSize int

	cmd := &cobra.Command{
		Use:   "peaks <file.wav>",
		Short: "Print the waveform summary of a WAV file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readRecording(args[0])
			if err != nil {
				return err
			}
			report, err := computePeaks(cmd.Context(), buf, frameSize, cliLogger(opts))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&frameSize, "frame-size", audio.FrameSize, "sample-frames per peak frame")
	return cmd
}

func newTrimCmd(opts *options) *cobra.Command {
	var begin, end time.Duration

	cmd := &cobra.Command{
		Use:   "trim <in.wav> <out.wav>",
		Short: "Save part of a WAV file",
		Long: `Copy the part of <in.wav> between --begin and --end to <out.wav>. Both
ends are rounded down to a whole sample-frame. Without --end the copy
runs to the end of the file.`,
		Example: "  snip-tray trim take.wav riff.wav --begin 1.5s --end 4s",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := trimFile(args[0], args[1], begin, end, cliLogger(opts))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", result.Path, result.Bytes)
			return nil
		},
	}
	cmd.Flags().DurationVar(&begin, "begin", 0, "start of the snippet")
	cmd.Flags().DurationVar(&end, "end", 0, "end of the snippet (default: end of file)")
	return cmd
}

// cliLogger logs to stderr only; the offline commands keep stdout for
// their output.
func cliLogger(opts *options) zerolog.Logger {
	level := zerolog.WarnLevel
	if opts.logLevel != "" {
		level = logging.ParseLevel(opts.logLevel)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
