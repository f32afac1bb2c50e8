package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent / buttons
	Yellow  = lipgloss.Color("#FFB500") // Warnings, pending tx
	Green   = lipgloss.Color("#2AFFAA") // Buy / success
	Red     = lipgloss.Color("#FF5555") // Sell / errors
	Blue    = lipgloss.Color("#3B82F6") // Links

	Base03 = lipgloss.Color("#1B1D23") // Background
	Base02 = lipgloss.Color("#262831") // Disabled button
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Accent    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Link      lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
	Disabled  lipgloss.Color

	Buy  lipgloss.Color
	Sell lipgloss.Color
}

func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Accent:    Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Link:      Blue,
		Text:      Base2,
		TextMuted: Base01,
		Disabled:  Base02,
		Buy:       Green,
		Sell:      Red,
	}
}

// SideColor is the accent for a buy (true) or sell panel.
func (p Palette) SideColor(buy bool) lipgloss.Color {
	if buy {
		return p.Buy
	}
	return p.Sell
}
