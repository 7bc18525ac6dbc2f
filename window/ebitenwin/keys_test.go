//go:build !headless

package ebitenwin

import (
	stderrors "errors"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/wippyai/wasm-iodevices/presenter"
)

func TestKeyCode(t *testing.T) {
	tests := []struct {
		key  ebiten.Key
		want uint32
	}{
		{ebiten.KeyA, 'A'},
		{ebiten.KeyZ, 'Z'},
		{ebiten.KeyDigit7, '7'},
		{ebiten.KeyEnter, presenter.KeyEnter},
		{ebiten.KeyNumpadEnter, presenter.KeyEnter},
		{ebiten.KeyArrowLeft, presenter.KeyLeft},
		{ebiten.KeyShiftRight, presenter.KeyShift},
	}
	for _, tt := range tests {
		got, ok := keyCode(tt.key)
		if !ok || got != tt.want {
			t.Errorf("keyCode(%v) = %d, %v, want %d", tt.key, got, ok, tt.want)
		}
	}
	if _, ok := keyCode(ebiten.KeyF12); ok {
		t.Error("F12 should not map")
	}
}

func TestKeyCode_MatchesRunes(t *testing.T) {
	for r := 'a'; r <= 'z'; r++ {
		want, _ := presenter.KeyForRune(r)
		found := false
		for _, code := range keyCodes {
			if code == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no ebiten key maps to %q", r)
		}
	}
}

func TestOpenWindow_InvalidSize(t *testing.T) {
	if _, err := NewOpener().OpenWindow(presenter.WindowConfig{Width: 0, Height: 4}); err == nil {
		t.Fatal("OpenWindow accepted zero width")
	}
}

func TestOpenWindow_NotServing(t *testing.T) {
	_, err := NewOpener().OpenWindow(presenter.WindowConfig{Width: 4, Height: 4})
	if !stderrors.Is(err, ErrNotServing) {
		t.Fatalf("OpenWindow outside Run = %v, want ErrNotServing", err)
	}
}

func TestRun_ReturnsResult(t *testing.T) {
	want := stderrors.New("boom")
	if err := Run(func() error { return want }); err != want {
		t.Fatalf("Run = %v, want %v", err, want)
	}
	if err := Run(func() error { return nil }); err != nil {
		t.Fatalf("second Run = %v", err)
	}
}

func TestGame_ReattachAfterClose(t *testing.T) {
	g := newGame()
	first := newWindow(4, 3)
	start, err := g.attach(first)
	if err != nil || !start {
		t.Fatalf("first attach = %v, %v; want start", start, err)
	}
	if w, h := g.Layout(0, 0); w != 4 || h != 3 {
		t.Errorf("Layout = %dx%d, want 4x3", w, h)
	}

	second := newWindow(8, 2)
	if _, err := g.attach(second); !stderrors.Is(err, ErrBusy) {
		t.Fatalf("attach while busy = %v, want ErrBusy", err)
	}

	first.closing.Store(true)
	if w := g.reap(); w != nil {
		t.Fatal("closed window still attached")
	}
	select {
	case <-first.done:
	default:
		t.Fatal("reaped window not released")
	}

	start, err = g.attach(second)
	if err != nil || start {
		t.Fatalf("reattach = %v, %v; want no restart", start, err)
	}
	if w, h := g.Layout(0, 0); w != 8 || h != 2 {
		t.Errorf("Layout = %dx%d, want 8x2", w, h)
	}
	if err := second.Present(make([]byte, 8*2*4)); err != nil {
		t.Errorf("Present: %v", err)
	}
}

func TestGame_EndReleasesAndRejects(t *testing.T) {
	g := newGame()
	w := newWindow(2, 2)
	if _, err := g.attach(w); err != nil {
		t.Fatalf("attach: %v", err)
	}
	g.end(nil)
	if err := w.Close(); err != nil {
		t.Fatalf("Close after end: %v", err)
	}
	if _, err := g.attach(newWindow(2, 2)); !stderrors.Is(err, ErrUsed) {
		t.Fatalf("attach after end = %v, want ErrUsed", err)
	}
}

func TestGame_AbortAllowsRestart(t *testing.T) {
	g := newGame()
	w := newWindow(2, 2)
	if _, err := g.attach(w); err != nil {
		t.Fatalf("attach: %v", err)
	}
	g.abort(w)
	start, err := g.attach(newWindow(2, 2))
	if err != nil || !start {
		t.Fatalf("attach after abort = %v, %v; want start", start, err)
	}
}
