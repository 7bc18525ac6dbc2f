package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-iodevices/snapshot"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	handleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browserState int

const (
	stateList browserState = iota
	stateFilter
	stateDetail
)

// browserModel lists the descriptors of one snapshot file.
type browserModel struct {
	err      error
	filename string
	diag     string
	info     snapshot.Info
	devices  []snapshot.Descriptor
	visible  []int
	filter   textinput.Model
	selected int
	state    browserState
	loaded   bool
}

type loadedMsg struct {
	err     error
	diag    string
	info    snapshot.Info
	devices []snapshot.Descriptor
}

func newBrowserModel(filename string) *browserModel {
	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.Placeholder = "handle, state or size"
	ti.Width = 40
	return &browserModel{
		filename: filename,
		filter:   ti,
		state:    stateList,
	}
}

func (m *browserModel) Init() tea.Cmd {
	return m.load
}

func (m *browserModel) load() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	info, err := snapshot.Inspect(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	rec, err := snapshot.Decode(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	diag, err := snapshot.Diagnose(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{info: info, devices: rec.Devices, diag: diag}
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateList
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateList && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateList {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter":
			switch m.state {
			case stateList:
				if len(m.visible) > 0 {
					m.state = stateDetail
				}
			case stateDetail:
				m.state = stateList
			}

		case "esc":
			m.state = stateList
		}

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.info = msg.info
		m.devices = msg.devices
		m.diag = msg.diag
		m.applyFilter()
	}
	return m, nil
}

// applyFilter keeps descriptors whose handle, state or size contains the
// filter text.
func (m *browserModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, d := range m.devices {
		if q == "" || strings.Contains(describeRow(d), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func describeRow(d snapshot.Descriptor) string {
	return strconv.FormatUint(uint64(d.Handle), 10) + " " +
		fmt.Sprintf("%dx%d", d.Width, d.Height) + " " + d.State.String()
}

func (m *browserModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading snapshot..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Device Snapshot"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("container v%d • %s • %d bytes stored • %d bytes payload",
		m.info.Version, m.info.Compression, m.info.StoredSize, m.info.PayloadSize)))
	b.WriteString("\n\n")

	switch m.state {
	case stateList, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		if len(m.visible) == 0 {
			b.WriteString("No devices.\n")
		}
		for i, idx := range m.visible {
			line := m.formatDevice(m.devices[idx])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter {
			b.WriteString(helpStyle.Render("type to filter • enter/esc done"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • enter details • / filter • q quit"))
		}

	case stateDetail:
		d := m.devices[m.visible[m.selected]]
		b.WriteString(fmt.Sprintf("Device %s\n\n", handleStyle.Render(strconv.FormatUint(uint64(d.Handle), 10))))
		b.WriteString(detailStyle.Render(fmt.Sprintf(
			"size:   %dx%d\nstate:  %s\nformat: %s\nshape:  %s\nbytes:  %d",
			d.Width, d.Height, d.State, d.Format, d.Shape, uint64(d.Width)*uint64(d.Height)*4)))
		b.WriteString("\n\nPayload:\n")
		b.WriteString(m.diag)
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}
	return b.String()
}

func (m *browserModel) formatDevice(d snapshot.Descriptor) string {
	return handleStyle.Render(fmt.Sprintf("#%d", d.Handle)) +
		fmt.Sprintf(" %dx%d ", d.Width, d.Height) +
		stateStyle.Render(d.State.String())
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newBrowserModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
