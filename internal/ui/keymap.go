package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines keyboard shortcuts for the trade screen. Plain digits and
// "." belong to the amount field, so actions use control keys.
type KeyMap struct {
	Quit key.Binding
	Help key.Binding

	Submit       key.Binding
	ToggleSide   key.Binding
	ToggleMining key.Binding
	NextPreset   key.Binding
	EditSlippage key.Binding
	Cancel       key.Binding
	Refresh      key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("ctrl+q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		ToggleSide: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "buy/sell"),
		),
		ToggleMining: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "mining"),
		),
		NextPreset: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "slippage preset"),
		),
		EditSlippage: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "custom slippage"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r", "f5"),
			key.WithHelp("ctrl+r", "refresh"),
		),
	}
}

// ShortHelp returns key help text for the current context
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.ToggleSide, k.NextPreset, k.Help, k.Quit}
}

// FullHelp returns extended help text for the current context
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.ToggleSide, k.ToggleMining},
		{k.NextPreset, k.EditSlippage, k.Cancel},
		{k.Refresh, k.Help, k.Quit},
	}
}

// EditingHelp is shown while the custom slippage field has focus.
func (k KeyMap) EditingHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		k.Cancel,
	}
}
