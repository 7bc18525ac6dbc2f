package presenter

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
)

const (
	// DefaultInterval is one frame at roughly 60 Hz.
	DefaultInterval = 16 * time.Millisecond

	// MaxInterval bounds how stale a presented frame or a close event can be.
	MaxInterval = time.Second
)

// StopReason records why a presenter loop ended.
type StopReason int32

const (
	Running StopReason = iota
	StoppedByHost
	ClosedByUser
	Faulted
)

func (r StopReason) String() string {
	switch r {
	case Running:
		return "running"
	case StoppedByHost:
		return "stopped"
	case ClosedByUser:
		return "closed-by-user"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Options configures a presenter loop.
type Options struct {
	// Input receives non-close window events. Nil discards them.
	Input *InputQueue

	// OnFault is called from the loop goroutine when the window fails to
	// present a frame. The device is already Closed when it runs.
	OnFault func(error)

	// Interval between ticks. Zero means DefaultInterval.
	Interval time.Duration

	// Handle is used for log fields and error context only.
	Handle uint32
}

// Presenter owns a window and keeps it showing the latest frame.
type Presenter struct {
	fb       *framebuffer.FrameBuffer
	win      Window
	stop     chan struct{}
	done     chan struct{}
	opts     Options
	frames   atomic.Uint64
	reason   atomic.Int32
	stopOnce sync.Once
}

// Start launches the loop goroutine. The presenter takes ownership of win
// and closes it when the loop ends.
func Start(fb *framebuffer.FrameBuffer, win Window, opts Options) *Presenter {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval > MaxInterval {
		opts.Interval = MaxInterval
	}

	p := &Presenter{
		fb:   fb,
		win:  win,
		opts: opts,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

// Done is closed once the loop has exited and the window is released.
func (p *Presenter) Done() <-chan struct{} {
	return p.done
}

// Frames returns the number of frames presented.
func (p *Presenter) Frames() uint64 {
	return p.frames.Load()
}

// Reason reports why the loop stopped, or Running.
func (p *Presenter) Reason() StopReason {
	return StopReason(p.reason.Load())
}

// Stop asks the loop to exit and waits up to timeout for it.
// Safe to call repeatedly and after the loop has already ended.
func (p *Presenter) Stop(timeout time.Duration) error {
	p.stopOnce.Do(func() {
		close(p.stop)
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return errors.PresenterJoinTimeout(p.opts.Handle, timeout)
	}
}

func (p *Presenter) run() {
	log := Logger().With(zap.Uint32("handle", p.opts.Handle))

	defer close(p.done)
	defer func() {
		if err := p.win.Close(); err != nil {
			log.Warn("close window", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	frame := make([]byte, p.fb.Len())
	// Present the initial blank frame on the first tick.
	gen := ^uint64(0)
	var events []Event

	for {
		select {
		case <-p.stop:
			p.finish(StoppedByHost)
			log.Debug("presenter stopped", zap.Uint64("frames", p.frames.Load()))
			return
		case <-ticker.C:
		}

		events = p.win.PollEvents(events[:0])
		for _, ev := range events {
			if ev.Kind == EventClose {
				p.fb.Close()
				p.finish(ClosedByUser)
				log.Info("window closed by user")
				return
			}
			if p.opts.Input != nil {
				p.opts.Input.Push(ev)
			}
		}

		next, changed := p.fb.CopyIfNewer(frame, gen)
		if !changed {
			continue
		}
		gen = next

		if err := p.win.Present(frame); err != nil {
			p.fb.Close()
			p.finish(Faulted)
			fault := errors.PlatformWindow(errors.PhasePresent, err, "present frame")
			fault.Handle = p.opts.Handle
			log.Error("present frame", zap.Error(err))
			if p.opts.OnFault != nil {
				p.opts.OnFault(fault)
			}
			return
		}
		p.frames.Add(1)
	}
}

func (p *Presenter) finish(r StopReason) {
	p.reason.CompareAndSwap(int32(Running), int32(r))
}
