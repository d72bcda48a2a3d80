// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard bindings.
type KeyMap struct {
	Next      key.Binding
	Prev      key.Binding
	Submit    key.Binding
	Refresh   key.Binding
	Logout    key.Binding
	Extend    key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the default bindings. extend is the session Extend
// key from the config.
func DefaultKeyMap(extend string) KeyMap {
	if extend == "" {
		extend = "e"
	}
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("S-tab", "previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "sign in"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh account"),
		),
		Logout: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "sign out"),
		),
		Extend: key.NewBinding(
			key.WithKeys(extend),
			key.WithHelp(extend, "extend session"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// loginHelp lists the bindings shown under the login form.
func (k KeyMap) loginHelp() []key.Binding {
	return []key.Binding{k.Next, k.Submit, k.Dismiss, k.ForceQuit}
}

// accountHelp lists the bindings shown under the account panel.
func (k KeyMap) accountHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Extend, k.Logout, k.Quit}
}
