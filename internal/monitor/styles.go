package monitor

import "github.com/charmbracelet/lipgloss"

// Broadcast palette on a dark theme
var (
	Primary = lipgloss.Color("#FF6B35")
	Success = lipgloss.Color("#4CAF50")
	Warning = lipgloss.Color("#FFB74D")
	Error   = lipgloss.Color("#F44336")
	Text    = lipgloss.Color("#E0E0E0")
	Muted   = lipgloss.Color("#90A4AE")

	HeaderBg   = lipgloss.Color("#1C2128")
	BorderDark = lipgloss.Color("#30363D")

	OnAir   = lipgloss.Color("#FF1744")
	Standby = lipgloss.Color("#FFC107")
	Offline = lipgloss.Color("#424242")
)

var (
	HeaderStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(HeaderBg).
		Bold(true).
		Padding(0, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary)

	PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderDark).
		Foreground(Text).
		Padding(0, 1)

	ColumnHeaderStyle = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	RowStyle = lipgloss.NewStyle().Foreground(Text)

	SelectedRowStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#1565C0")).
		Bold(true)

	MutedStyle = lipgloss.NewStyle().Foreground(Muted)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error).Bold(true)

	OnAirStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(OnAir).Bold(true).Padding(0, 1)
	PreviewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(Standby).Bold(true).Padding(0, 1)
	IdleStyle    = lipgloss.NewStyle().Foreground(Text).Background(Offline).Padding(0, 1)

	ConnectedStyle    = lipgloss.NewStyle().Foreground(Success).Bold(true)
	DisconnectedStyle = lipgloss.NewStyle().Foreground(Warning)
)
