package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Hotkey modes
const (
	ModeToggle     = "Toggle"
	ModePushToTalk = "PushToTalk"
)

// Capture backends
const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// SNIPTRAY_AUDIO_DEVICE_ID or SNIPTRAY_LOG_LEVEL.
const EnvPrefix = "SNIPTRAY"

type Config struct {
	Hotkey       string         `json:"hotkey" mapstructure:"hotkey"`
	HotkeyDarwin string         `json:"hotkey_darwin" mapstructure:"hotkey_darwin"`
	Mode         string         `json:"mode" mapstructure:"mode"` // "Toggle" or "PushToTalk"
	LogLevel     string         `json:"log_level" mapstructure:"log_level"`
	Audio        AudioConfig    `json:"audio" mapstructure:"audio"`
	Playback     PlaybackConfig `json:"playback" mapstructure:"playback"`
	Export       ExportConfig   `json:"export" mapstructure:"export"`
	Metrics      MetricsConfig  `json:"metrics" mapstructure:"metrics"`

	path string
}

type AudioConfig struct {
	Backend              string `json:"backend" mapstructure:"backend"` // "malgo" or "portaudio"
	DeviceID             string `json:"device_id" mapstructure:"device_id"`
	Loopback             bool   `json:"loopback" mapstructure:"loopback"`
	InitialBufferSeconds int    `json:"initial_buffer_seconds" mapstructure:"initial_buffer_seconds"`
}

type PlaybackConfig struct {
	LatencyMS       int `json:"latency_ms" mapstructure:"latency_ms"`
	FramesPerBuffer int `json:"frames_per_buffer" mapstructure:"frames_per_buffer"`
}

type ExportConfig struct {
	Directory           string `json:"directory" mapstructure:"directory"` // empty: ExportPath()
	FileName            string `json:"file_name" mapstructure:"file_name"`
	CopyPathToClipboard bool   `json:"copy_path_to_clipboard" mapstructure:"copy_path_to_clipboard"`
}

type MetricsConfig struct {
	Address string `json:"address" mapstructure:"address"` // empty disables the endpoint
}

// Load reads the config from the default location or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path, applying defaults for missing keys and
// SNIPTRAY_* environment overrides on top.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load existing config if it exists
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hotkey", "Win+Shift+A")
	v.SetDefault("hotkey_darwin", "Ctrl+Shift+A")
	v.SetDefault("mode", ModeToggle)
	v.SetDefault("log_level", "info")

	v.SetDefault("audio.backend", BackendMalgo)
	v.SetDefault("audio.device_id", "")
	v.SetDefault("audio.loopback", true)
	v.SetDefault("audio.initial_buffer_seconds", 30)

	v.SetDefault("playback.latency_ms", 75)
	v.SetDefault("playback.frames_per_buffer", 512)

	v.SetDefault("export.directory", "")
	v.SetDefault("export.file_name", "audio")
	v.SetDefault("export.copy_path_to_clipboard", false)

	v.SetDefault("metrics.address", "")
}

// Validate checks enumerated fields and numeric ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeToggle, ModePushToTalk:
	default:
		return fmt.Errorf("invalid mode %q: must be %s or %s", c.Mode, ModeToggle, ModePushToTalk)
	}
	switch c.Audio.Backend {
	case BackendMalgo, BackendPortAudio:
	default:
		return fmt.Errorf("invalid audio backend %q: must be %s or %s", c.Audio.Backend, BackendMalgo, BackendPortAudio)
	}
	if c.Audio.InitialBufferSeconds < 0 {
		return fmt.Errorf("audio.initial_buffer_seconds must not be negative")
	}
	if c.Playback.LatencyMS <= 0 {
		return fmt.Errorf("playback.latency_ms must be positive")
	}
	if c.Playback.FramesPerBuffer <= 0 {
		return fmt.Errorf("playback.frames_per_buffer must be positive")
	}
	if strings.ContainsAny(c.Export.FileName, `/\`) {
		return fmt.Errorf("export.file_name must not contain path separators")
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// PlaybackLatency returns the configured output latency.
func (c *Config) PlaybackLatency() time.Duration {
	return time.Duration(c.Playback.LatencyMS) * time.Millisecond
}

// ExportDirectory returns the directory snippets are saved to.
func (c *Config) ExportDirectory() string {
	if c.Export.Directory != "" {
		return c.Export.Directory
	}
	return ExportPath()
}

// SnippetPath returns a timestamped destination for a saved snippet.
func (c *Config) SnippetPath(now time.Time) string {
	name := c.Export.FileName
	if name == "" {
		name = "audio"
	}
	return filepath.Join(c.ExportDirectory(), fmt.Sprintf("%s-%s.wav", name, now.Format("20060102-150405")))
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "snip-tray", "config.json")
}

// ExportPath returns the platform-specific default directory for snippets
func ExportPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Music"
	case "windows":
		base = os.Getenv("USERPROFILE") + `\Music`
	default:
		if xdg := os.Getenv("XDG_MUSIC_DIR"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/Music"
		}
	}

	return filepath.Join(base, "snip-tray")
}
