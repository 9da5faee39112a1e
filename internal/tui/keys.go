// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import "github.com/charmbracelet/bubbles/key"

// globalKeyMap holds the bindings active regardless of which section is focused,
// rendered in the footer help bar via bubbles/help.
type globalKeyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Filter   key.Binding
	Quit     key.Binding
}

func newGlobalKeyMap() globalKeyMap {
	return globalKeyMap{
		Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next section")),
		ShiftTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev section")),
		Filter:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "cycle filter")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k globalKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.ShiftTab, k.Filter, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k globalKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
