// Package framebuffer holds the pixel store behind a graphics device.
//
// A FrameBuffer has a fixed geometry chosen at creation and a byte slice of
// exactly width*height*4 bytes in R, G, B, A order, row-major, top to bottom.
// Its state only moves forward:
//
//	Uninitialized -> Open -> Closed
//
// Writers replace the entire frame; a write of the wrong length or to a
// non-Open buffer leaves the pixels untouched. Readers always copy the whole
// frame under the same lock, so a reader never sees a mix of two writes.
// There is a single buffer: a reader that falls behind skips frames rather
// than tearing them.
package framebuffer
