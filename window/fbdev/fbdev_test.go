package fbdev

import (
	"bytes"
	"testing"
)

var bgra32 = Layout{
	Red:          Channel{Offset: 16, Length: 8},
	Green:        Channel{Offset: 8, Length: 8},
	Blue:         Channel{Offset: 0, Length: 8},
	BitsPerPixel: 32,
	Stride:       16,
	Width:        4,
	Height:       3,
}

var rgb565 = Layout{
	Red:          Channel{Offset: 11, Length: 5},
	Green:        Channel{Offset: 5, Length: 6},
	Blue:         Channel{Offset: 0, Length: 5},
	BitsPerPixel: 16,
	Stride:       8,
	Width:        4,
	Height:       3,
}

func TestLayout_Validate(t *testing.T) {
	bad := bgra32
	bad.BitsPerPixel = 8
	narrow := bgra32
	narrow.Stride = 8
	wide := bgra32
	wide.Red.Length = 9

	tests := []struct {
		name   string
		layout Layout
		ok     bool
	}{
		{"bgra32", bgra32, true},
		{"rgb565", rgb565, true},
		{"palette", bad, false},
		{"short stride", narrow, false},
		{"wide channel", wide, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestBlit_BGRA32(t *testing.T) {
	src := []byte{
		0x11, 0x22, 0x33, 0xFF, 0x44, 0x55, 0x66, 0xFF,
	}
	dst := make([]byte, bgra32.Stride*bgra32.Height)
	Blit(dst, bgra32, src, 2, 1, 1)

	want := []byte{0x33, 0x22, 0x11, 0x00, 0x66, 0x55, 0x44, 0x00}
	if !bytes.Equal(dst[:8], want) {
		t.Errorf("row 0 = % x, want % x", dst[:8], want)
	}
	if !bytes.Equal(dst[8:], make([]byte, len(dst)-8)) {
		t.Error("pixels outside the frame were written")
	}
}

func TestBlit_ScaleAndClip(t *testing.T) {
	// 3x2 frame at scale 2 is 6x4, clipped to the 4x3 screen.
	src := make([]byte, 3*2*4)
	for i := range src {
		src[i] = 0xFF
	}
	dst := make([]byte, bgra32.Stride*bgra32.Height)
	Blit(dst, bgra32, src, 3, 2, 2)

	for i := 0; i < len(dst); i += 4 {
		if px := dst[i : i+3]; !bytes.Equal(px, []byte{0xFF, 0xFF, 0xFF}) {
			t.Fatalf("pixel at byte %d = % x, want white", i, px)
		}
	}
}

func TestBlit_RGB565(t *testing.T) {
	src := []byte{0xFF, 0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0x00, 0xFF, 0xFF}
	dst := make([]byte, rgb565.Stride*rgb565.Height)
	Blit(dst, rgb565, src, 3, 1, 1)

	want := []byte{0x00, 0xF8, 0xE0, 0x07, 0x1F, 0x00}
	if !bytes.Equal(dst[:6], want) {
		t.Errorf("row 0 = % x, want % x", dst[:6], want)
	}
}

func TestBlit_ShortDestination(t *testing.T) {
	src := make([]byte, 4*3*4)
	dst := make([]byte, bgra32.Stride)
	Blit(dst, bgra32, src, 4, 3, 1)
}
