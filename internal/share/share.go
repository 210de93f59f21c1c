// Package share hands a saved snippet to other applications.
package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard is available, e.g. Linux
// without xclip, xsel or wl-clipboard installed.
var ErrUnsupported = errors.New("clipboard not available")

// Sharer publishes the path of a saved snippet.
type Sharer interface {
	CopyPath(ctx context.Context, path string) error
}

type clipboardSharer struct {
	unsupported bool
	write       func(string) error
}

// New creates a Sharer that copies paths to the system clipboard
func New() Sharer {
	return &clipboardSharer{
		unsupported: clipboard.Unsupported,
		write:       clipboard.WriteAll,
	}
}

// CopyPath places path on the clipboard so it can be pasted into a file
// dialog or chat.
func (c *clipboardSharer) CopyPath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" {
		return errors.New("no path to copy")
	}
	if c.unsupported {
		return ErrUnsupported
	}
	if err := c.write(path); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
