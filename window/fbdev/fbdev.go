// Package fbdev shows device frames on a Linux framebuffer device such as
// /dev/fb0.
//
// The frame is drawn at the top-left corner of the visible screen, scaled
// by an integer factor and clipped to the screen. Framebuffers have no
// input and no close button, so windows never produce events.
package fbdev

import (
	"encoding/binary"
	"fmt"
)

// DefaultPath is the framebuffer opened when no path is configured.
const DefaultPath = "/dev/fb0"

// Channel locates one colour channel inside a pixel, as in fb_bitfield.
type Channel struct {
	Offset uint32
	Length uint32
}

// Layout describes how the screen stores pixels.
type Layout struct {
	Red, Green, Blue Channel
	BitsPerPixel     uint32
	Stride           int // bytes per line
	Width, Height    int // visible pixels
}

// Validate reports whether Layout is a packed true-colour format this
// package can draw into.
func (l Layout) Validate() error {
	switch l.BitsPerPixel {
	case 16, 24, 32:
	default:
		return fmt.Errorf("fbdev: unsupported depth %d bpp", l.BitsPerPixel)
	}
	for _, c := range []Channel{l.Red, l.Green, l.Blue} {
		if c.Length == 0 || c.Length > 8 || c.Offset+c.Length > l.BitsPerPixel {
			return fmt.Errorf("fbdev: unsupported channel layout %+v", c)
		}
	}
	if l.Width <= 0 || l.Height <= 0 || l.Stride < l.Width*int(l.BitsPerPixel/8) {
		return fmt.Errorf("fbdev: bad geometry %dx%d stride %d", l.Width, l.Height, l.Stride)
	}
	return nil
}

// pack encodes an RGB colour in the layout's pixel format.
func (l Layout) pack(r, g, b byte) uint32 {
	ch := func(c Channel, v byte) uint32 {
		return uint32(v>>(8-c.Length)) << c.Offset
	}
	return ch(l.Red, r) | ch(l.Green, g) | ch(l.Blue, b)
}

// Blit draws an RGBA frame of width x height into dst, scaled by scale
// and clipped to the layout. Alpha is ignored.
func Blit(dst []byte, l Layout, src []byte, width, height, scale int) {
	if scale < 1 {
		scale = 1
	}
	bpp := int(l.BitsPerPixel / 8)
	outW := min(width*scale, l.Width)
	outH := min(height*scale, l.Height)

	var px [4]byte
	for y := 0; y < outH; y++ {
		line := y * l.Stride
		if line+outW*bpp > len(dst) {
			return
		}
		row := (y / scale) * width * 4
		for x := 0; x < outW; x++ {
			i := row + (x/scale)*4
			binary.LittleEndian.PutUint32(px[:], l.pack(src[i], src[i+1], src[i+2]))
			copy(dst[line+x*bpp:line+(x+1)*bpp], px[:bpp])
		}
	}
}
