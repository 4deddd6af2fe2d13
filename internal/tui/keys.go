package tui

import (
	"charm.land/bubbles/v2/key"
)

// Slash command constants for the chat pane.
const (
	cmdHelp     = "/help"
	cmdClear    = "/clear"
	cmdExit     = "/exit"
	cmdQuit     = "/quit"
	cmdSettings = "/settings"
	cmdSet      = "/set"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	NextTab   key.Binding
	Submit    key.Binding
	Cancel    key.Binding
	Quit      key.Binding
	Refresh   key.Binding
	Filter    key.Binding
	Upload    key.Binding
	Delete    key.Binding
	Select    key.Binding
	Open      key.Binding
	Search    key.Binding
	NextPage  key.Binding
	EscCancel key.Binding
	Scroll    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		NextTab:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Filter:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Upload:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Select:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
		Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "chunks")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		NextPage:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next page")),
		EscCancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Scroll:    key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
	}
}
