package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/device"
	"github.com/wippyai/wasm-iodevices/engine"
	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/internal/guestmod"
	"github.com/wippyai/wasm-iodevices/presenter"
)

// Self-test guest memory layout.
const (
	outHandle = 0
	outWidth  = 4
	outHeight = 8
	outCount  = 12
	eventsAt  = 64
	maxEvents = 32
	pixelsAt  = eventsAt + maxEvents*device.EventRecordSize
	pageSize  = 1 << 16
)

// driver calls a forwarding guest's exports the way a compiled guest would
// call its imports.
type driver struct {
	ctx context.Context
	mod api.Module
}

func (d *driver) call(name string, args ...uint32) (errors.Errno, error) {
	fn := d.mod.ExportedFunction(guestmod.ExportPrefix + name)
	if fn == nil {
		return 0, fmt.Errorf("self-test guest lacks %s", name)
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeU32(a)
	}
	res, err := fn.Call(d.ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return errors.Errno(api.DecodeU32(res[0])), nil
}

func (d *driver) must(name string, args ...uint32) error {
	code, err := d.call(name, args...)
	if err != nil {
		return err
	}
	if code != errors.ErrnoSuccess {
		return fmt.Errorf("%s failed: %v", name, code)
	}
	return nil
}

func (d *driver) u32(offset uint32) uint32 {
	v, _ := d.mod.Memory().ReadUint32Le(offset)
	return v
}

// selftest opens a device through the guest ABI and animates a test
// pattern until frames have been shown, the window is closed or ctx ends.
func selftest(ctx context.Context, eng *engine.Engine, width, height uint32, frames int, interval time.Duration, log *zap.Logger) error {
	frameLen, ok := framebuffer.ByteLen(width, height)
	if !ok {
		return errors.InvalidDimensions(width, height)
	}
	pages := (pixelsAt + frameLen + pageSize - 1) / pageSize

	b := guestmod.New(device.ModuleName).Memory(uint32(pages))
	for _, imp := range device.Imports {
		b.Import(imp.Name, len(imp.Params), 1)
	}
	mod, err := eng.Load(ctx, b.Build())
	if err != nil {
		return err
	}
	defer mod.Close(context.Background())

	inst, err := mod.Instantiate(ctx, &engine.RunConfig{Name: "selftest"})
	if err != nil {
		return err
	}
	defer inst.Close(context.Background())
	d := &driver{ctx: ctx, mod: inst}

	if err := d.must("open", width, height, outHandle); err != nil {
		return err
	}
	h := d.u32(outHandle)
	if err := d.must("size", h, outWidth, outHeight); err != nil {
		return err
	}
	log.Info("self-test device open",
		zap.Uint32("handle", h),
		zap.Uint32("width", d.u32(outWidth)),
		zap.Uint32("height", d.u32(outHeight)))

	var (
		frame  = make([]byte, frameLen)
		cursor = point{x: -1, y: -1}
		ticker = time.NewTicker(interval)
		shown  int
	)
	defer ticker.Stop()

loop:
	for frames == 0 || shown < frames {
		drawPattern(frame, int(width), int(height), shown, cursor)
		if !inst.Memory().Write(pixelsAt, frame) {
			return fmt.Errorf("self-test frame does not fit guest memory")
		}
		code, err := d.call("write", h, pixelsAt, uint32(frameLen))
		if err != nil {
			return err
		}
		switch code {
		case errors.ErrnoSuccess:
			shown++
		case errors.ErrnoDeviceClosed:
			log.Info("self-test window closed", zap.Int("frames", shown))
			break loop
		default:
			return fmt.Errorf("write failed: %v", code)
		}

		if err := d.must("poll_input", h, eventsAt, maxEvents, outCount); err != nil {
			return err
		}
		data, _ := inst.Memory().Read(eventsAt, d.u32(outCount)*device.EventRecordSize)
		for _, ev := range decodeEvents(data) {
			switch ev.Kind {
			case presenter.EventMouseMove, presenter.EventMouseDown:
				cursor = point{x: int(ev.X), y: int(ev.Y)}
			}
			log.Debug("self-test input",
				zap.Stringer("kind", ev.Kind),
				zap.Uint32("code", ev.Code),
				zap.Int32("x", ev.X),
				zap.Int32("y", ev.Y))
		}

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	if err := d.must("close", h); err != nil {
		return err
	}
	log.Info("self-test done", zap.Int("frames", shown))
	return nil
}

type point struct {
	x, y int
}

// drawPattern fills frame with diagonal colour bands that move with n and
// a white crosshair at cursor.
func drawPattern(frame []byte, width, height, n int, cursor point) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			frame[i] = byte((x + n) * 255 / max(width, 1))
			frame[i+1] = byte((y + n) * 255 / max(height, 1))
			frame[i+2] = byte((x + y + n) * 4)
			frame[i+3] = 0xFF
			if x == cursor.x || y == cursor.y {
				frame[i], frame[i+1], frame[i+2] = 0xFF, 0xFF, 0xFF
			}
		}
	}
}

// decodeEvents parses input records written by poll_input.
func decodeEvents(data []byte) []presenter.Event {
	events := make([]presenter.Event, 0, len(data)/device.EventRecordSize)
	for len(data) >= device.EventRecordSize {
		events = append(events, presenter.Event{
			Kind: presenter.EventKind(binary.LittleEndian.Uint32(data[0:])),
			Code: binary.LittleEndian.Uint32(data[4:]),
			X:    int32(binary.LittleEndian.Uint32(data[8:])),
			Y:    int32(binary.LittleEndian.Uint32(data[12:])),
		})
		data = data[device.EventRecordSize:]
	}
	return events
}
