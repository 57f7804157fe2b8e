package ui

import "github.com/charmbracelet/bubbles/key"

// sizeStep is how many songs the more/fewer keys add or drop from a chart.
const sizeStep = 5

// keyMap holds the chart browser bindings. List navigation and filtering come from [list.Model].
type keyMap struct {
	open      key.Binding
	back      key.Binding
	reload    key.Binding
	more      key.Binding
	fewer     key.Binding
	nextChart key.Binding
	prevChart key.Binding
	confirm   key.Binding
	cancel    key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		more:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "more songs")),
		fewer:     key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "fewer songs")),
		nextChart: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next chart")),
		prevChart: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous chart")),
		confirm:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "rebuild")),
		cancel:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// chartKeys are shown under a song list.
func (k keyMap) chartKeys() []key.Binding {
	return []key.Binding{k.open, k.reload, k.more, k.fewer, k.nextChart, k.back, k.quit}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.open, k.back, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.open, k.back, k.reload},
		{k.more, k.fewer, k.nextChart, k.prevChart},
		{k.confirm, k.cancel, k.quit},
	}
}
