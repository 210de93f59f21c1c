package tray

import (
	"testing"
	"time"

	"github.com/petems/snip-tray/internal/config"
)

func TestModeTitle(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		expected string
	}{
		{
			name:     "PushToTalk mode",
			mode:     config.ModePushToTalk,
			expected: "Mode: Push-to-Talk",
		},
		{
			name:     "Toggle mode",
			mode:     config.ModeToggle,
			expected: "Mode: Toggle",
		},
		{
			name:     "empty defaults to Toggle",
			mode:     "",
			expected: "Mode: Toggle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modeTitle(tt.mode); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRecordingTitleCyclesDots(t *testing.T) {
	want := []string{"Recording", "Recording.", "Recording..", "Recording...", "Recording"}
	for tick, expected := range want {
		if got := recordingTitle(tick); got != expected {
			t.Errorf("tick %d: expected %q, got %q", tick, expected, got)
		}
	}
}

func TestEmojiForStatus(t *testing.T) {
	statuses := []string{"idle", "recording", "ready", "playing", "error"}
	seen := make(map[string]string)
	for _, s := range statuses {
		e := emojiForStatus(s)
		if other, ok := seen[e]; ok {
			t.Errorf("statuses %s and %s share %s", s, other, e)
		}
		seen[e] = s
	}
	if emojiForStatus("unknown") != emojiForStatus("idle") {
		t.Error("unknown status should look idle")
	}
}

func TestFormatPosition(t *testing.T) {
	tests := []struct {
		pos, length time.Duration
		expected    string
	}{
		{0, 5 * time.Second, "0:00.0 / 0:05.0"},
		{1250 * time.Millisecond, 90 * time.Second, "0:01.2 / 1:30.0"},
		{-time.Second, 61*time.Second + 990*time.Millisecond, "0:00.0 / 1:01.9"},
	}
	for _, tt := range tests {
		if got := formatPosition(tt.pos, tt.length); got != tt.expected {
			t.Errorf("formatPosition(%s, %s) = %q, want %q", tt.pos, tt.length, got, tt.expected)
		}
	}
}

func TestOpenCommand(t *testing.T) {
	name, args := openCommand("darwin", "/tmp/x.log")
	if name != "open" || len(args) != 1 || args[0] != "/tmp/x.log" {
		t.Errorf("unexpected darwin command %s %v", name, args)
	}
	name, args = openCommand("linux", "/tmp/x.log")
	if name != "xdg-open" || args[0] != "/tmp/x.log" {
		t.Errorf("unexpected linux command %s %v", name, args)
	}
	name, args = openCommand("windows", `C:\x.log`)
	if name != "cmd" || args[len(args)-1] != `C:\x.log` {
		t.Errorf("unexpected windows command %s %v", name, args)
	}
}
