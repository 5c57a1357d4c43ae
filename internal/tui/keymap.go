package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the run watcher.
type KeyMap struct {
	Quit key.Binding
	Copy key.Binding
}

// DefaultKeyMap returns the default run watcher key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy report"),
		),
	}
}
