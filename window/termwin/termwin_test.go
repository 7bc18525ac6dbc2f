package termwin

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-iodevices/presenter"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name             string
		w, h, maxC, maxR int
		wantC, wantR     int
	}{
		{"small frame kept", 2, 1, 80, 22, 2, 1},
		{"odd height rounds up", 4, 5, 80, 22, 4, 3},
		{"too wide", 160, 100, 80, 40, 80, 25},
		{"too tall", 100, 200, 80, 20, 20, 20},
		{"no room", 10, 10, 0, 10, 0, 0},
		{"thin line", 1000, 1, 80, 22, 80, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := fit(tt.w, tt.h, tt.maxC, tt.maxR)
			if c != tt.wantC || r != tt.wantR {
				t.Errorf("fit(%d, %d, %d, %d) = %d, %d, want %d, %d",
					tt.w, tt.h, tt.maxC, tt.maxR, c, r, tt.wantC, tt.wantR)
			}
		})
	}
}

func TestSample(t *testing.T) {
	// 2x2 frame: red, green / blue, white.
	frame := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	grid := sample(frame, 2, 2, 2, 1)
	if len(grid) != 1 || len(grid[0]) != 2 {
		t.Fatalf("grid = %dx?, want 1 row of 2", len(grid))
	}
	want := []cell{
		{Top: rgb{255, 0, 0}, Bottom: rgb{0, 0, 255}},
		{Top: rgb{0, 255, 0}, Bottom: rgb{255, 255, 255}},
	}
	for i, c := range grid[0] {
		if c != want[i] {
			t.Errorf("cell %d = %+v, want %+v", i, c, want[i])
		}
	}

	// Nearest-neighbour samples pixel centres, so halving picks column 1.
	if grid := sample(frame, 2, 2, 1, 1); grid[0][0].Top != (rgb{0, 255, 0}) {
		t.Errorf("downscaled top = %+v", grid[0][0].Top)
	}
	if sample(frame[:4], 2, 2, 1, 1) != nil {
		t.Error("short frame sampled")
	}
}

func TestRenderCells(t *testing.T) {
	grid := [][]cell{{{}, {}, {Top: rgb{1, 2, 3}}}}
	out := renderCells(grid)
	if got := strings.Count(out, halfBlock); got != 3 {
		t.Errorf("rendered %d blocks, want 3", got)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("line not terminated")
	}
}

func TestKeyEvents(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want []uint32
	}{
		{"letter folds", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}, []uint32{'A'}},
		{"two runes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x1")}, []uint32{'X', '1'}},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, []uint32{presenter.KeyEnter}},
		{"arrow", tea.KeyMsg{Type: tea.KeyLeft}, []uint32{presenter.KeyLeft}},
		{"unmapped", tea.KeyMsg{Type: tea.KeyF5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := keyEvents(tt.msg)
			if len(events) != len(tt.want)*2 {
				t.Fatalf("got %d events, want %d", len(events), len(tt.want)*2)
			}
			for i, code := range tt.want {
				down, up := events[i*2], events[i*2+1]
				if down.Kind != presenter.EventKeyDown || up.Kind != presenter.EventKeyUp {
					t.Errorf("kinds = %v, %v", down.Kind, up.Kind)
				}
				if down.Code != code || up.Code != code {
					t.Errorf("codes = %d, %d, want %d", down.Code, up.Code, code)
				}
			}
		})
	}
}

func TestModel_Close(t *testing.T) {
	m := newModel(presenter.WindowConfig{Title: "t", Width: 2, Height: 2}, 80, 24)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	events := m.drain(nil)
	if len(events) != 1 || events[0].Kind != presenter.EventClose {
		t.Fatalf("events = %v, want one close", events)
	}
	if len(m.drain(nil)) != 0 {
		t.Error("drain did not empty the queue")
	}
}

func TestModel_Mouse(t *testing.T) {
	// 4x4 frame in a roomy terminal: 4 cols, 2 rows below the title.
	m := newModel(presenter.WindowConfig{Width: 4, Height: 4}, 80, 24)

	m.Update(tea.MouseMsg{X: 3, Y: 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m.Update(tea.MouseMsg{X: 1, Y: 1, Action: tea.MouseActionMotion})
	m.Update(tea.MouseMsg{X: 40, Y: 1, Action: tea.MouseActionMotion})
	m.Update(tea.MouseMsg{X: 0, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})

	events := m.drain(nil)
	want := []presenter.Event{
		{Kind: presenter.EventMouseDown, Code: presenter.MouseLeft, X: 3, Y: 2},
		{Kind: presenter.EventMouseMove, X: 1, Y: 0},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestModel_View(t *testing.T) {
	m := newModel(presenter.WindowConfig{Title: "demo", Width: 2, Height: 2}, 80, 24)
	if err := m.setFrame(make([]byte, 16)); err != nil {
		t.Fatalf("setFrame: %v", err)
	}
	if err := m.setFrame(make([]byte, 15)); err == nil {
		t.Error("setFrame accepted a short frame")
	}
	view := m.View()
	if !strings.Contains(view, "demo") || strings.Count(view, halfBlock) != 2 {
		t.Errorf("view = %q", view)
	}
}

func TestModel_ViewTruncatesTitle(t *testing.T) {
	m := newModel(presenter.WindowConfig{Title: "a rather long window title", Width: 2, Height: 2}, 10, 24)
	view := m.View()
	if strings.Contains(view, "title") || !strings.Contains(view, "…") {
		t.Errorf("title not truncated: %q", view)
	}
}
