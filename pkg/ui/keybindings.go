// SPDX-License-Identifier: Apache-2.0
package ui

import "github.com/charmbracelet/bubbles/key"

// progressKeyMap holds the bindings of the release progress view
type progressKeyMap struct {
	Cancel key.Binding
}

func newProgressKeyMap() progressKeyMap {
	return progressKeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c", "q"),
			key.WithHelp("esc", "cancel release"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k progressKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel}
}

// FullHelp implements help.KeyMap
func (k progressKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
