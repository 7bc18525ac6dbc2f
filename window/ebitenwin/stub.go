//go:build headless

package ebitenwin

import (
	stderrors "errors"

	"github.com/wippyai/wasm-iodevices/presenter"
)

// ErrUsed is returned once the process has already run its game loop.
var ErrUsed = stderrors.New("ebitenwin: game loop already used by this process")

// ErrUnavailable is returned by headless builds.
var ErrUnavailable = stderrors.New("ebitenwin: built with the headless tag")

// ErrBusy is kept for parity with display builds.
var ErrBusy = stderrors.New("ebitenwin: window already shows a device")

// ErrNotServing is kept for parity with display builds.
var ErrNotServing = stderrors.New("ebitenwin: Run is not serving windows")

// Run calls fn directly.
func Run(fn func() error) error {
	return fn()
}

// Opener is a stand-in that never opens a window.
type Opener struct{}

// NewOpener returns an opener that always fails.
func NewOpener() *Opener {
	return &Opener{}
}

// OpenWindow always returns ErrUnavailable.
func (o *Opener) OpenWindow(presenter.WindowConfig) (presenter.Window, error) {
	return nil, ErrUnavailable
}
