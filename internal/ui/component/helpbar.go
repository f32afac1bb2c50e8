package component

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/origin-trader/internal/ui/style"
)

// HelpBar shows keyboard shortcuts under the screen, short or expanded.
type HelpBar struct {
	model     help.Model
	short     []key.Binding
	full      [][]key.Binding
	container lipgloss.Style
}

func NewHelpBar() *HelpBar {
	palette := style.DefaultPalette()

	m := help.New()
	m.Styles.ShortKey = lipgloss.NewStyle().Foreground(palette.Primary).Bold(true)
	m.Styles.FullKey = m.Styles.ShortKey
	m.Styles.ShortDesc = lipgloss.NewStyle().Foreground(palette.TextMuted)
	m.Styles.FullDesc = m.Styles.ShortDesc
	m.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(palette.TextMuted)
	m.Styles.FullSeparator = m.Styles.ShortSeparator
	m.Width = 80

	return &HelpBar{
		model:     m,
		container: lipgloss.NewStyle().Padding(0, 1).Margin(1, 0, 0, 0),
	}
}

// SetKeyBindings sets the short and expanded binding sets.
func (h *HelpBar) SetKeyBindings(short []key.Binding, full [][]key.Binding) *HelpBar {
	h.short = short
	h.full = full
	return h
}

func (h *HelpBar) SetWidth(width int) *HelpBar {
	h.model.Width = width
	return h
}

// ToggleFull switches between the short and expanded views.
func (h *HelpBar) ToggleFull() {
	h.model.ShowAll = !h.model.ShowAll
}

// ShortHelp implements help.KeyMap.
func (h *HelpBar) ShortHelp() []key.Binding { return h.short }

// FullHelp implements help.KeyMap.
func (h *HelpBar) FullHelp() [][]key.Binding { return h.full }

func (h *HelpBar) View() string {
	if len(h.short) == 0 && len(h.full) == 0 {
		return ""
	}
	return h.container.Render(h.model.View(h))
}

// ViewContextual renders bindings in place of the configured ones.
func (h *HelpBar) ViewContextual(bindings []key.Binding) string {
	return h.container.Render(h.model.ShortHelpView(bindings))
}
