// Package tui provides the interactive embedding explorer.
package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the explorer.
type KeyMap struct {
	Input     key.Binding
	Enter     key.Binding
	Up        key.Binding
	Down      key.Binding
	Tab       key.Binding
	ShiftTab  key.Binding
	Copy      key.Binding
	Help      key.Binding
	Quit      key.Binding
	Escape    key.Binding
	GotoStart key.Binding
	GotoEnd   key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Input: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "edit sentence"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "embed"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/up", "previous token"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/down", "next token"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next panel"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev panel"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy vector"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		GotoStart: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first token"),
		),
		GotoEnd: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last token"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Input, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Input, k.Enter, k.Escape},
		{k.Up, k.Down, k.Tab},
		{k.GotoStart, k.GotoEnd, k.Copy},
		{k.Help, k.Quit},
	}
}
