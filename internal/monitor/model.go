// Package monitor is a terminal view of the NDI sources on the network.
// It lists sources, refreshes them every second and shows tally and
// connection state for the selected one.
package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/zsiec/ndikit/pkg/ndi"
)

// DefaultInterval is how often sources and status are refreshed.
const DefaultInterval = time.Second

// SourceLister runs one discovery pass; ndi.Finder implements it.
type SourceLister interface {
	FindSources(timeout time.Duration) ([]ndi.Source, error)
}

// StatusProber reports on one source; ReceiverProber implements it.
type StatusProber interface {
	Probe(src ndi.Source) (SourceStatus, error)
}

// Messages
type tickMsg time.Time

type sourcesMsg struct {
	sources []ndi.Source
	err     error
}

type statusMsg struct {
	status SourceStatus
	err    error
}

// Model is the bubbletea model of the monitor.
type Model struct {
	lister   SourceLister
	prober   StatusProber
	interval time.Duration
	wait     time.Duration

	sources    []ndi.Source
	selected   int
	status     *SourceStatus
	sourcesErr error
	statusErr  error
	lastUpdate time.Time
	quitting   bool
}

// NewModel polls lister every interval. prober may be nil, which hides
// the status panel.
func NewModel(lister SourceLister, prober StatusProber, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Model{
		lister:   lister,
		prober:   prober,
		interval: interval,
		wait:     interval / 2,
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetchSources() tea.Cmd {
	lister, wait := m.lister, m.wait
	return func() tea.Msg {
		sources, err := lister.FindSources(wait)
		return sourcesMsg{sources: sources, err: err}
	}
}

func (m *Model) probeSelected() tea.Cmd {
	src, ok := m.Selected()
	if !ok || m.prober == nil {
		return nil
	}
	prober := m.prober
	return func() tea.Msg {
		status, err := prober.Probe(src)
		return statusMsg{status: status, err: err}
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchSources(), tickEvery(m.interval))
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetchSources()
		case "up", "k":
			return m, m.move(-1)
		case "down", "j":
			return m, m.move(1)
		}

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(m.fetchSources(), m.probeSelected(), tickEvery(m.interval))

	case sourcesMsg:
		m.sourcesErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.setSources(msg.sources)
		m.lastUpdate = time.Now()
		return m, nil

	case statusMsg:
		src, ok := m.Selected()
		if !ok || src.Name != msg.status.Source && msg.err == nil {
			// Stale answer for a source no longer selected.
			return m, nil
		}
		m.statusErr = msg.err
		if msg.err == nil {
			status := msg.status
			m.status = &status
		}
		return m, nil
	}

	return m, nil
}

// setSources replaces the list, keeping the selection on the same source
// name when it is still present.
func (m *Model) setSources(sources []ndi.Source) {
	prev, hadPrev := m.Selected()

	sorted := append([]ndi.Source(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	m.sources = sorted

	m.selected = 0
	if hadPrev {
		for i, s := range sorted {
			if s.Name == prev.Name {
				m.selected = i
				return
			}
		}
		m.status = nil
		m.statusErr = nil
	}
}

func (m *Model) move(delta int) tea.Cmd {
	if len(m.sources) == 0 {
		return nil
	}
	next := min(max(m.selected+delta, 0), len(m.sources)-1)
	if next == m.selected {
		return nil
	}
	m.selected = next
	m.status = nil
	m.statusErr = nil
	return m.probeSelected()
}

// Selected returns the highlighted source.
func (m *Model) Selected() (ndi.Source, bool) {
	if m.selected < 0 || m.selected >= len(m.sources) {
		return ndi.Source{}, false
	}
	return m.sources[m.selected], true
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return "Closing monitor...\n"
	}

	sections := []string{
		HeaderStyle.Render(fmt.Sprintf("NDI Monitor  %d sources", len(m.sources))),
		m.renderSources(),
	}
	if m.prober != nil {
		sections = append(sections, m.renderStatus())
	}
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m *Model) renderSources() string {
	if m.sourcesErr != nil {
		return PanelStyle.Render(ErrorStyle.Render("Discovery failed: " + m.sourcesErr.Error()))
	}
	if len(m.sources) == 0 {
		return PanelStyle.Render(MutedStyle.Render("Searching for sources..."))
	}

	rows := [][3]string{{"NAME", "ADDRESS", "HOST:PORT"}}
	for _, src := range m.sources {
		rows = append(rows, [3]string{src.Name, src.Address.String(), hostPort(src)})
	}

	var widths [3]int
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		line := fmt.Sprintf("%-*s  %-*s  %-*s", widths[0], row[0], widths[1], row[1], widths[2], row[2])
		switch {
		case i == 0:
			line = ColumnHeaderStyle.Render(line)
		case i-1 == m.selected:
			line = SelectedRowStyle.Render(line)
		default:
			line = RowStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return PanelStyle.Render(strings.Join(lines, "\n"))
}

func hostPort(src ndi.Source) string {
	host, ok := src.Host()
	if !ok {
		return "-"
	}
	if port, ok := src.Address.Port(); ok {
		return fmt.Sprintf("%s:%d", host, port)
	}
	return host
}

func (m *Model) renderStatus() string {
	src, ok := m.Selected()
	if !ok {
		return PanelStyle.Render(MutedStyle.Render("No source selected"))
	}
	title := ColumnHeaderStyle.Render(src.Name)
	if m.statusErr != nil {
		return PanelStyle.Render(title + "\n" + ErrorStyle.Render(m.statusErr.Error()))
	}
	if m.status == nil {
		return PanelStyle.Render(title + "\n" + MutedStyle.Render("Connecting..."))
	}

	tally := IdleStyle.Render("IDLE")
	if t := m.status.Tally; t != nil {
		switch {
		case t.OnProgram:
			tally = OnAirStyle.Render("PROGRAM")
		case t.OnPreview:
			tally = PreviewStyle.Render("PREVIEW")
		}
	}

	conn := DisconnectedStyle.Render("no connections")
	if n := m.status.Connections; n > 0 {
		conn = ConnectedStyle.Render(fmt.Sprintf("%d %s", n, plural(n, "connection", "connections")))
	}

	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		fmt.Sprintf("Tally: %s   %s", tally, conn),
		MutedStyle.Render("checked "+humanize.Time(m.status.CheckedAt)),
	))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (m *Model) renderFooter() string {
	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = humanize.Time(m.lastUpdate)
	}
	return MutedStyle.Render(fmt.Sprintf("updated %s  •  ↑/↓ select  •  r refresh  •  q quit", updated))
}
