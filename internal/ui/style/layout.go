package style

import "github.com/charmbracelet/lipgloss"

// Styles used by the trade screen.
type Styles struct {
	Title     lipgloss.Style
	Panel     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Link      lipgloss.Style
	TabActive lipgloss.Style
	Tab       lipgloss.Style
	Button    lipgloss.Style
	ButtonOff lipgloss.Style
}

func NewStyles(p Palette) Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(p.Primary).
			Bold(true).
			Margin(0, 0, 1, 0),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.TextMuted).
			Padding(1, 2),
		Label:   lipgloss.NewStyle().Foreground(p.TextMuted).Width(14),
		Value:   lipgloss.NewStyle().Foreground(p.Text),
		Muted:   lipgloss.NewStyle().Foreground(p.TextMuted),
		Success: lipgloss.NewStyle().Foreground(p.Success).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(p.Error).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(p.Warning),
		Link:    lipgloss.NewStyle().Foreground(p.Link).Underline(true),
		TabActive: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			Border(lipgloss.NormalBorder(), false, false, true, false),
		Tab: lipgloss.NewStyle().
			Foreground(p.TextMuted).
			Padding(0, 2),
		Button: lipgloss.NewStyle().
			Foreground(Base03).
			Bold(true).
			Padding(0, 3),
		ButtonOff: lipgloss.NewStyle().
			Foreground(p.TextMuted).
			Background(p.Disabled).
			Padding(0, 3),
	}
}

// AdaptiveWidth returns percentage of width, at least 20 columns.
func AdaptiveWidth(width, percentage int) int {
	w := width * percentage / 100
	if w < 20 {
		return 20
	}
	return w
}
