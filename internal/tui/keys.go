package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the bindings of the browser. It implements help.KeyMap.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Back    key.Binding
	Home    key.Binding
	Switch  key.Binding
	Mount   key.Binding
	Unmount key.Binding
	Share   key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter", "right", "l"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "left", "h"),
			key.WithHelp("←/h", "back"),
		),
		Home: key.NewBinding(
			key.WithKeys("~", "home"),
			key.WithHelp("~", "drive root"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab", "esc"),
			key.WithHelp("tab", "switch pane"),
		),
		Mount: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mount"),
		),
		Unmount: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unmount"),
		),
		Share: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "share"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Back, k.Switch, k.Mount, k.Unmount, k.Share, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Back, k.Home},
		{k.Switch, k.Refresh},
		{k.Mount, k.Unmount, k.Share},
		{k.Help, k.Quit},
	}
}
