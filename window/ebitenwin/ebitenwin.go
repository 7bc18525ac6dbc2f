//go:build !headless

package ebitenwin

import (
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/wippyai/wasm-iodevices/presenter"
)

// StartTimeout bounds how long OpenWindow waits for the first frame.
const StartTimeout = 5 * time.Second

// ErrUsed is returned once the game loop has ended, which happens when the
// user closes the desktop window.
var ErrUsed = stderrors.New("ebitenwin: game loop already used by this process")

// ErrNotServing is returned by OpenWindow when Run is not active.
var ErrNotServing = stderrors.New("ebitenwin: Run is not serving windows")

// ErrBusy is returned while the desktop window still shows another device.
var ErrBusy = stderrors.New("ebitenwin: window already shows a device")

var (
	serving atomic.Bool
	starts  = make(chan struct{})
	shared  = newGame()
)

// Run calls fn on a new goroutine and serves the game loop on the calling
// goroutine until fn returns. ebiten needs the main thread, so Run must be
// called from main.
func Run(fn func() error) error {
	if !serving.CompareAndSwap(false, true) {
		return stderrors.New("ebitenwin: Run is already active")
	}
	defer serving.Store(false)
	shared.quit.Store(false)

	result := make(chan error, 1)
	go func() {
		err := fn()
		shared.quit.Store(true)
		result <- err
	}()

	for {
		select {
		case err := <-result:
			return err
		case <-starts:
			shared.run()
		}
	}
}

// Opener opens device windows in the process-wide ebiten window.
type Opener struct{}

// NewOpener returns an opener for the process-wide ebiten window.
func NewOpener() *Opener {
	return &Opener{}
}

// OpenWindow attaches a device of cfg's size to the desktop window,
// starting the game loop on first use, and returns once the device's first
// frame has been drawn. A device closed by the host frees the window for
// the next OpenWindow. Only the user closing the window ends the loop.
func (o *Opener) OpenWindow(cfg presenter.WindowConfig) (presenter.Window, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("ebitenwin: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if !serving.Load() {
		return nil, ErrNotServing
	}
	scale := cfg.Scale
	if scale < 1 {
		scale = 1
	}

	w := newWindow(cfg.Width, cfg.Height)
	start, err := shared.attach(w)
	if err != nil {
		return nil, err
	}
	ebiten.SetWindowSize(cfg.Width*scale, cfg.Height*scale)
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetWindowClosingHandled(true)

	timer := time.NewTimer(StartTimeout)
	defer timer.Stop()

	if start {
		select {
		case starts <- struct{}{}:
		case <-timer.C:
			shared.abort(w)
			return nil, ErrNotServing
		}
	}

	select {
	case <-w.ready:
		return w, nil
	case <-w.done:
		return nil, fmt.Errorf("ebitenwin: game loop exited during start: %w", shared.err())
	case <-timer.C:
		w.closing.Store(true)
		return nil, fmt.Errorf("ebitenwin: no frame drawn within %v", StartTimeout)
	}
}

// Window is one device's view of the desktop window.
type Window struct {
	ready     chan struct{}
	done      chan struct{}
	frame     []byte
	pending   []presenter.Event
	width     int
	height    int
	mu        sync.Mutex
	readyOnce sync.Once
	doneOnce  sync.Once
	closing   atomic.Bool
	closeSent bool
}

func newWindow(width, height int) *Window {
	return &Window{
		width:  width,
		height: height,
		frame:  make([]byte, width*height*4),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Present stores pixels for the next Draw.
func (w *Window) Present(pixels []byte) error {
	if len(pixels) != len(w.frame) {
		return fmt.Errorf("ebitenwin: frame is %d bytes, want %d", len(pixels), len(w.frame))
	}
	select {
	case <-w.done:
		return fmt.Errorf("ebitenwin: window gone: %w", shared.err())
	default:
	}
	w.mu.Lock()
	copy(w.frame, pixels)
	w.mu.Unlock()
	return nil
}

// PollEvents drains events gathered by Update.
func (w *Window) PollEvents(dst []presenter.Event) []presenter.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	dst = append(dst, w.pending...)
	w.pending = w.pending[:0]
	return dst
}

// Close detaches the device from the desktop window and waits until the
// game loop has let go of it.
func (w *Window) Close() error {
	w.closing.Store(true)
	<-w.done
	return nil
}

func (w *Window) push(events ...presenter.Event) {
	w.mu.Lock()
	w.pending = append(w.pending, events...)
	w.mu.Unlock()
}

func (w *Window) pushClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closeSent {
		return
	}
	w.closeSent = true
	w.pending = append(w.pending, presenter.Event{Kind: presenter.EventClose})
}

func (w *Window) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

// game is the single ebiten.Game of the process. At most one Window is
// attached at a time.
type game struct {
	runErr     error
	win        *Window
	image      *ebiten.Image
	keys       []ebiten.Key
	width      int
	height     int
	cursorX    int
	cursorY    int
	mu         sync.Mutex
	quit       atomic.Bool
	started    bool
	ended      bool
	userClosed bool
}

func newGame() *game {
	return &game{}
}

// attach makes w the shown window and reports whether the game loop still
// has to be started.
func (g *game) attach(w *Window) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ended {
		return false, ErrUsed
	}
	if g.win != nil {
		return false, ErrBusy
	}
	g.win = w
	g.width, g.height = w.width, w.height
	start := !g.started
	g.started = true
	return start, nil
}

// abort undoes an attach whose game loop never started.
func (g *game) abort(w *Window) {
	g.mu.Lock()
	if g.win == w {
		g.win = nil
	}
	g.started = false
	g.mu.Unlock()
	w.finish()
}

// reap detaches a window whose device was closed and returns the window
// still attached, if any.
func (g *game) reap() *Window {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.win != nil && g.win.closing.Load() {
		g.win.finish()
		g.win = nil
	}
	return g.win
}

// end records the loop result and releases the attached window.
func (g *game) end(err error) {
	g.mu.Lock()
	g.runErr = err
	g.ended = true
	w := g.win
	g.win = nil
	g.mu.Unlock()
	if w != nil {
		w.finish()
	}
}

func (g *game) run() {
	g.end(ebiten.RunGame(g))
}

func (g *game) err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runErr == nil {
		return stderrors.New("game loop ended")
	}
	return g.runErr
}

// Update implements ebiten.Game.
func (g *game) Update() error {
	if g.quit.Load() {
		return ebiten.Termination
	}
	w := g.reap()

	if ebiten.IsWindowBeingClosed() {
		g.mu.Lock()
		g.userClosed = true
		g.mu.Unlock()
	}
	g.mu.Lock()
	closed := g.userClosed
	g.mu.Unlock()

	if closed {
		// Keep running until the presenter has closed the device.
		if w == nil {
			return ebiten.Termination
		}
		w.pushClose()
		return nil
	}
	if w != nil {
		g.collectInput(w)
	}
	return nil
}

func (g *game) collectInput(w *Window) {
	var events []presenter.Event

	g.keys = inpututil.AppendJustPressedKeys(g.keys[:0])
	for _, k := range g.keys {
		if code, ok := keyCode(k); ok {
			events = append(events, presenter.Event{Kind: presenter.EventKeyDown, Code: code})
		}
	}
	g.keys = inpututil.AppendJustReleasedKeys(g.keys[:0])
	for _, k := range g.keys {
		if code, ok := keyCode(k); ok {
			events = append(events, presenter.Event{Kind: presenter.EventKeyUp, Code: code})
		}
	}

	x, y := ebiten.CursorPosition()
	if x != g.cursorX || y != g.cursorY {
		g.cursorX, g.cursorY = x, y
		if x >= 0 && y >= 0 && x < w.width && y < w.height {
			events = append(events, presenter.Event{Kind: presenter.EventMouseMove, X: int32(x), Y: int32(y)})
		}
	}
	for _, b := range mouseButtons {
		if inpututil.IsMouseButtonJustPressed(b.button) {
			events = append(events, presenter.Event{Kind: presenter.EventMouseDown, Code: b.code, X: int32(x), Y: int32(y)})
		}
		if inpututil.IsMouseButtonJustReleased(b.button) {
			events = append(events, presenter.Event{Kind: presenter.EventMouseUp, Code: b.code, X: int32(x), Y: int32(y)})
		}
	}

	if len(events) > 0 {
		w.push(events...)
	}
}

// Draw implements ebiten.Game. With no device attached the screen stays
// cleared.
func (g *game) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	w := g.win
	g.mu.Unlock()
	if w == nil {
		return
	}

	if g.image == nil || g.image.Bounds().Dx() != w.width || g.image.Bounds().Dy() != w.height {
		if g.image != nil {
			g.image.Deallocate()
		}
		g.image = ebiten.NewImage(w.width, w.height)
	}
	w.mu.Lock()
	g.image.WritePixels(w.frame)
	w.mu.Unlock()
	screen.DrawImage(g.image, nil)

	w.readyOnce.Do(func() { close(w.ready) })
}

// Layout implements ebiten.Game. The logical screen is the size of the
// last attached device and ebiten scales it to the window.
func (g *game) Layout(_, _ int) (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width, g.height
}
