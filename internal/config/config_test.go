package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.json")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}

	if cfg.Mode != ModeToggle {
		t.Fatalf("expected default mode %s, got %s", ModeToggle, cfg.Mode)
	}
	if cfg.Hotkey != "Win+Shift+A" {
		t.Fatalf("unexpected default hotkey %q", cfg.Hotkey)
	}
	if cfg.Audio.Backend != BackendMalgo || !cfg.Audio.Loopback {
		t.Fatalf("expected malgo loopback capture by default, got %+v", cfg.Audio)
	}
	if cfg.Playback.LatencyMS != 75 {
		t.Fatalf("expected 75ms latency, got %d", cfg.Playback.LatencyMS)
	}
	if cfg.Export.FileName != "audio" {
		t.Fatalf("expected default file name audio, got %q", cfg.Export.FileName)
	}
	if cfg.Path() != path {
		t.Fatalf("expected path %s, got %s", path, cfg.Path())
	}
}

func TestLoadReadsFileAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"mode": "PushToTalk", "audio": {"device_id": "Speakers"}, "export": {"file_name": "clip"}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}

	if cfg.Mode != ModePushToTalk {
		t.Fatalf("expected mode from file, got %s", cfg.Mode)
	}
	if cfg.Audio.DeviceID != "Speakers" {
		t.Fatalf("expected device from file, got %q", cfg.Audio.DeviceID)
	}
	if cfg.Audio.Backend != BackendMalgo {
		t.Fatalf("expected default backend to survive partial file, got %q", cfg.Audio.Backend)
	}
	if cfg.Export.FileName != "clip" {
		t.Fatalf("expected file name clip, got %q", cfg.Export.FileName)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SNIPTRAY_AUDIO_DEVICE_ID", "Monitor of Built-in Audio")
	t.Setenv("SNIPTRAY_PLAYBACK_LATENCY_MS", "120")
	t.Setenv("SNIPTRAY_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}

	if cfg.Audio.DeviceID != "Monitor of Built-in Audio" {
		t.Fatalf("expected env device, got %q", cfg.Audio.DeviceID)
	}
	if cfg.PlaybackLatency() != 120*time.Millisecond {
		t.Fatalf("expected 120ms latency, got %s", cfg.PlaybackLatency())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "mode", data: `{"mode": "Hold"}`, want: "invalid mode"},
		{name: "backend", data: `{"audio": {"backend": "wasapi"}}`, want: "invalid audio backend"},
		{name: "latency", data: `{"playback": {"latency_ms": 0}}`, want: "latency_ms"},
		{name: "file name", data: `{"export": {"file_name": "a/b"}}`, want: "path separators"},
		{name: "malformed", data: `{"mode": `, want: "failed to read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := LoadFrom(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Mode = ModePushToTalk
	cfg.Export.CopyPathToClipboard = true

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	reloaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if reloaded.Mode != ModePushToTalk || !reloaded.Export.CopyPathToClipboard {
		t.Fatalf("saved values not reloaded: %+v", reloaded)
	}
}

func TestSnippetPath(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Directory: "/tmp/snips", FileName: "take"}}
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	got := cfg.SnippetPath(now)
	want := filepath.Join("/tmp/snips", "take-20240309-140507.wav")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
