// Package termwin shows device frames in a terminal.
//
// Each terminal cell draws two vertically stacked pixels with the upper
// half block glyph: the foreground colours the top pixel and the
// background the bottom one. Frames are scaled with nearest-neighbour
// sampling to fit the terminal, keeping the aspect ratio.
//
// Terminals report key presses only, so every key produces a key-down
// event immediately followed by a key-up event.
package termwin

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/wippyai/wasm-iodevices/presenter"
)

const (
	defaultCols = 80
	defaultRows = 24
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type keyMap struct {
	Close key.Binding
}

var keys = keyMap{
	Close: key.NewBinding(
		key.WithKeys("ctrl+c", "ctrl+q"),
		key.WithHelp("ctrl+c", "close window"),
	),
}

// Opener opens terminal windows. The zero value uses the process's
// standard streams.
type Opener struct {
	// Input and Output override the terminal streams. Output that is not a
	// terminal is accepted only when set explicitly.
	Input  io.Reader
	Output io.Writer
}

// NewOpener returns an opener for the controlling terminal.
func NewOpener() *Opener {
	return &Opener{}
}

// OpenWindow starts a full-screen terminal program for cfg.
func (o *Opener) OpenWindow(cfg presenter.WindowConfig) (presenter.Window, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("termwin: invalid size %dx%d", cfg.Width, cfg.Height)
	}

	cols, rows := defaultCols, defaultRows
	out := o.Output
	if out == nil {
		fd := int(os.Stdout.Fd())
		if !term.IsTerminal(fd) {
			return nil, fmt.Errorf("termwin: stdout is not a terminal")
		}
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = w, h
		}
		out = os.Stdout
	}

	m := newModel(cfg, cols, rows)
	opts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	}
	if o.Input != nil {
		opts = append(opts, tea.WithInput(o.Input))
	}

	w := &Window{
		model:   m,
		program: tea.NewProgram(m, opts...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		if _, err := w.program.Run(); err != nil {
			m.fail(err)
		}
	}()
	return w, nil
}

// Window is a terminal showing one device.
type Window struct {
	model   *model
	program *tea.Program
	done    chan struct{}
}

type frameMsg struct{}

// Present stores pixels and asks the program to redraw. Redraw requests
// coalesce while one is pending.
func (w *Window) Present(pixels []byte) error {
	if err := w.model.setFrame(pixels); err != nil {
		return err
	}
	select {
	case <-w.done:
		return fmt.Errorf("termwin: program exited: %w", w.model.err())
	default:
	}
	if w.model.redraw.CompareAndSwap(false, true) {
		go w.program.Send(frameMsg{})
	}
	return nil
}

// PollEvents drains events gathered from the terminal.
func (w *Window) PollEvents(dst []presenter.Event) []presenter.Event {
	return w.model.drain(dst)
}

// Close quits the program and restores the terminal.
func (w *Window) Close() error {
	w.program.Quit()
	<-w.done
	return nil
}

// model is the bubbletea model. Update and View run on the program
// goroutine; the mutex guards what Present and PollEvents share with it.
type model struct {
	runErr  error
	title   string
	frame   []byte
	pending []presenter.Event
	width   int
	height  int
	cols    int
	rows    int
	mu      sync.Mutex
	redraw  atomic.Bool
	closing bool
}

func newModel(cfg presenter.WindowConfig, cols, rows int) *model {
	return &model{
		title:  cfg.Title,
		width:  cfg.Width,
		height: cfg.Height,
		frame:  make([]byte, cfg.Width*cfg.Height*4),
		cols:   cols,
		rows:   rows,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.cols, m.rows = msg.Width, msg.Height
		m.mu.Unlock()

	case frameMsg:
		m.redraw.Store(false)

	case tea.KeyMsg:
		if key.Matches(msg, keys.Close) {
			m.mu.Lock()
			if !m.closing {
				m.closing = true
				m.pending = append(m.pending, presenter.Event{Kind: presenter.EventClose})
			}
			m.mu.Unlock()
			return m, nil
		}
		m.push(keyEvents(msg)...)

	case tea.MouseMsg:
		if ev, ok := m.mouseEvent(msg); ok {
			m.push(ev)
		}
	}
	return m, nil
}

func (m *model) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Two columns of padding around the title.
	header := titleStyle.Render(runewidth.Truncate(m.title, max(m.cols-2, 1), "…"))
	footer := helpStyle.Render(keys.Close.Help().Key + " " + keys.Close.Help().Desc)
	cols, rows := fit(m.width, m.height, m.cols, m.rows-2)
	return header + "\n" + renderCells(sample(m.frame, m.width, m.height, cols, rows)) + footer
}

func (m *model) setFrame(pixels []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(pixels) != len(m.frame) {
		return fmt.Errorf("termwin: frame is %d bytes, want %d", len(pixels), len(m.frame))
	}
	copy(m.frame, pixels)
	return nil
}

func (m *model) push(events ...presenter.Event) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, events...)
	m.mu.Unlock()
}

func (m *model) drain(dst []presenter.Event) []presenter.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst = append(dst, m.pending...)
	m.pending = m.pending[:0]
	return dst
}

func (m *model) fail(err error) {
	m.mu.Lock()
	m.runErr = err
	m.mu.Unlock()
}

func (m *model) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runErr == nil {
		return fmt.Errorf("program ended")
	}
	return m.runErr
}

// mouseEvent maps a terminal cell position back to frame coordinates.
// The first row is the title bar.
func (m *model) mouseEvent(msg tea.MouseMsg) (presenter.Event, bool) {
	m.mu.Lock()
	cols, rows := fit(m.width, m.height, m.cols, m.rows-2)
	fw, fh := m.width, m.height
	m.mu.Unlock()

	cx, cy := msg.X, msg.Y-1
	if cols == 0 || rows == 0 || cx < 0 || cy < 0 || cx >= cols || cy >= rows {
		return presenter.Event{}, false
	}
	x := int32(cx * fw / cols)
	y := int32(cy * fh / rows)

	var kind presenter.EventKind
	switch msg.Action {
	case tea.MouseActionMotion:
		kind = presenter.EventMouseMove
	case tea.MouseActionPress:
		kind = presenter.EventMouseDown
	case tea.MouseActionRelease:
		kind = presenter.EventMouseUp
	default:
		return presenter.Event{}, false
	}
	ev := presenter.Event{Kind: kind, X: x, Y: y}
	if kind != presenter.EventMouseMove {
		code, ok := mouseButton(msg.Button)
		if !ok {
			return presenter.Event{}, false
		}
		ev.Code = code
	}
	return ev, true
}

func mouseButton(b tea.MouseButton) (uint32, bool) {
	switch b {
	case tea.MouseButtonLeft:
		return presenter.MouseLeft, true
	case tea.MouseButtonRight:
		return presenter.MouseRight, true
	case tea.MouseButtonMiddle:
		return presenter.MouseMiddle, true
	}
	return 0, false
}

var specialKeys = map[tea.KeyType]uint32{
	tea.KeyEnter:     presenter.KeyEnter,
	tea.KeyEsc:       presenter.KeyEscape,
	tea.KeyBackspace: presenter.KeyBackspace,
	tea.KeyTab:       presenter.KeyTab,
	tea.KeySpace:     presenter.KeySpace,
	tea.KeyDelete:    presenter.KeyDelete,
	tea.KeyUp:        presenter.KeyUp,
	tea.KeyDown:      presenter.KeyDown,
	tea.KeyLeft:      presenter.KeyLeft,
	tea.KeyRight:     presenter.KeyRight,
	tea.KeyHome:      presenter.KeyHome,
	tea.KeyEnd:       presenter.KeyEnd,
	tea.KeyPgUp:      presenter.KeyPageUp,
	tea.KeyPgDown:    presenter.KeyPageDown,
}

// keyEvents turns one terminal key press into down/up pairs.
func keyEvents(msg tea.KeyMsg) []presenter.Event {
	var codes []uint32
	if msg.Type == tea.KeyRunes {
		for _, r := range msg.Runes {
			if code, ok := presenter.KeyForRune(r); ok {
				codes = append(codes, code)
			}
		}
	} else if code, ok := specialKeys[msg.Type]; ok {
		codes = append(codes, code)
	}

	events := make([]presenter.Event, 0, len(codes)*2)
	for _, code := range codes {
		events = append(events,
			presenter.Event{Kind: presenter.EventKeyDown, Code: code},
			presenter.Event{Kind: presenter.EventKeyUp, Code: code})
	}
	return events
}
