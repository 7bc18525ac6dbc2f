//go:build linux

package fbdev

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-iodevices/presenter"
)

// <linux/fb.h>
const (
	ioctlGetVScreenInfo = 0x4600
	ioctlGetFScreenInfo = 0x4602
)

type bitfield struct {
	Offset, Length, MSBRight uint32
}

// varScreenInfo mirrors struct fb_var_screeninfo.
type varScreenInfo struct {
	XRes, YRes               uint32
	XResVirtual, YResVirtual uint32
	XOffset, YOffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32
	Red, Green, Blue, Transp bitfield
	NonStd                   uint32
	Activate                 uint32
	Height, Width            uint32
	AccelFlags               uint32
	PixClock                 uint32
	LeftMargin, RightMargin  uint32
	UpperMargin, LowerMargin uint32
	HSyncLen, VSyncLen       uint32
	Sync, VMode, Rotate      uint32
	Colorspace               uint32
	_                        [4]uint32
}

// fixScreenInfo mirrors struct fb_fix_screeninfo.
type fixScreenInfo struct {
	ID           [16]byte
	SMemStart    uintptr
	SMemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	XPanStep     uint16
	YPanStep     uint16
	YWrapStep    uint16
	LineLength   uint32
	MmioStart    uintptr
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	_            [2]uint16
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// Opener opens windows on a framebuffer device.
type Opener struct {
	Path string
}

// NewOpener returns an opener for the device at path, or DefaultPath.
func NewOpener(path string) *Opener {
	if path == "" {
		path = DefaultPath
	}
	return &Opener{Path: path}
}

// OpenWindow maps the framebuffer. cfg.Title is ignored.
func (o *Opener) OpenWindow(cfg presenter.WindowConfig) (presenter.Window, error) {
	fd, err := unix.Open(o.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("fbdev: open %s: %w", o.Path, err)
	}

	var vinfo varScreenInfo
	var finfo fixScreenInfo
	if err := ioctl(fd, ioctlGetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fbdev: read variable screen info: %w", err)
	}
	if err := ioctl(fd, ioctlGetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fbdev: read fixed screen info: %w", err)
	}

	layout := Layout{
		Red:          Channel{vinfo.Red.Offset, vinfo.Red.Length},
		Green:        Channel{vinfo.Green.Offset, vinfo.Green.Length},
		Blue:         Channel{vinfo.Blue.Offset, vinfo.Blue.Length},
		BitsPerPixel: vinfo.BitsPerPixel,
		Stride:       int(finfo.LineLength),
		Width:        int(vinfo.XRes),
		Height:       int(vinfo.YRes),
	}
	if err := layout.Validate(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	mem, err := unix.Mmap(fd, 0, int(finfo.SMemLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fbdev: mmap %s: %w", o.Path, err)
	}

	// Draw into the visible page.
	start := int(vinfo.YOffset)*layout.Stride + int(vinfo.XOffset)*int(layout.BitsPerPixel/8)
	if start > len(mem) {
		start = 0
	}

	return &Window{
		fd:     fd,
		mem:    mem,
		screen: mem[start:],
		layout: layout,
		width:  cfg.Width,
		height: cfg.Height,
		scale:  cfg.Scale,
	}, nil
}

// Window draws into a mapped framebuffer.
type Window struct {
	mem    []byte
	screen []byte
	layout Layout
	fd     int
	width  int
	height int
	scale  int
	mu     sync.Mutex
	closed bool
}

// Present draws pixels onto the screen.
func (w *Window) Present(pixels []byte) error {
	if len(pixels) != w.width*w.height*4 {
		return fmt.Errorf("fbdev: frame is %d bytes, want %d", len(pixels), w.width*w.height*4)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("fbdev: window closed")
	}
	Blit(w.screen, w.layout, pixels, w.width, w.height, w.scale)
	return nil
}

// PollEvents returns dst unchanged.
func (w *Window) PollEvents(dst []presenter.Event) []presenter.Event {
	return dst
}

// Close unmaps the framebuffer. The last frame stays on screen.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := unix.Munmap(w.mem)
	if cerr := unix.Close(w.fd); err == nil {
		err = cerr
	}
	return err
}
