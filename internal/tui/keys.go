package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyEsc      = "esc"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeyConfig   = "s"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView(finished bool) string {
	help := "Tab: cycle focus | 1/2: jump to pane | j/k: select task | s: config | q: quit"
	if finished {
		help = "Run finished | " + help
	}
	return StyleHelp.Render(help)
}
