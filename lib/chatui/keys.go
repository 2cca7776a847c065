// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the chat interface's key bindings. Plain letters are
// never bound on the chat screen: they belong to the composer.
type KeyMap struct {
	// Login screen.
	NextField key.Binding
	Submit    key.Binding

	// Chat screen.
	Send         key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	RecordToggle key.Binding
	PlayClip     key.Binding
	DiscardClip  key.Binding
	SendClip     key.Binding
	Rooms        key.Binding
	Logout       key.Binding

	// Room switcher.
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Cancel key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	NextField: key.NewBinding(
		key.WithKeys("tab", "shift+tab", "up", "down"),
		key.WithHelp("Tab", "next field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "log in"),
	),
	Send: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("C-s", "send"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	RecordToggle: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "record"),
	),
	PlayClip: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("C-p", "play"),
	),
	DiscardClip: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("C-x", "discard"),
	),
	SendClip: key.NewBinding(
		key.WithKeys("ctrl+v"),
		key.WithHelp("C-v", "send clip"),
	),
	Rooms: key.NewBinding(
		key.WithKeys("ctrl+o"),
		key.WithHelp("C-o", "rooms"),
	),
	Logout: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("C-l", "log out"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+k"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+j"),
		key.WithHelp("↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "open"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
