package share

import (
	"context"
	"errors"
	"testing"
)

func TestCopyPathWritesClipboard(t *testing.T) {
	var got string
	s := &clipboardSharer{write: func(text string) error {
		got = text
		return nil
	}}

	if err := s.CopyPath(context.Background(), "/tmp/audio-20240101-120000.wav"); err != nil {
		t.Fatalf("CopyPath returned error: %v", err)
	}
	if got != "/tmp/audio-20240101-120000.wav" {
		t.Fatalf("unexpected clipboard contents %q", got)
	}
}

func TestCopyPathErrors(t *testing.T) {
	writeErr := errors.New("xclip failed")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		sharer  *clipboardSharer
		ctx     context.Context
		path    string
		wantErr error
	}{
		{
			name:    "unsupported",
			sharer:  &clipboardSharer{unsupported: true, write: func(string) error { return nil }},
			ctx:     context.Background(),
			path:    "/tmp/a.wav",
			wantErr: ErrUnsupported,
		},
		{
			name:    "write failure",
			sharer:  &clipboardSharer{write: func(string) error { return writeErr }},
			ctx:     context.Background(),
			path:    "/tmp/a.wav",
			wantErr: writeErr,
		},
		{
			name:    "cancelled",
			sharer:  &clipboardSharer{write: func(string) error { return nil }},
			ctx:     cancelled,
			path:    "/tmp/a.wav",
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sharer.CopyPath(tt.ctx, tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	s := &clipboardSharer{write: func(string) error { return nil }}
	if err := s.CopyPath(context.Background(), ""); err == nil {
		t.Fatal("expected empty path to fail")
	}
}
