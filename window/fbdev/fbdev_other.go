//go:build !linux

package fbdev

import (
	"fmt"
	"runtime"

	"github.com/wippyai/wasm-iodevices/presenter"
)

// Opener is unavailable outside Linux.
type Opener struct {
	Path string
}

// NewOpener returns an opener that always fails.
func NewOpener(path string) *Opener {
	if path == "" {
		path = DefaultPath
	}
	return &Opener{Path: path}
}

// OpenWindow always fails.
func (o *Opener) OpenWindow(presenter.WindowConfig) (presenter.Window, error) {
	return nil, fmt.Errorf("fbdev: framebuffer devices are not supported on %s", runtime.GOOS)
}
