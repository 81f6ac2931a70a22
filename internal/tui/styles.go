package tui

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorHelp   = lipgloss.Color("241")
)

var (
	StyleFocusedBorder   = paneBorder(colorAccent)
	StyleUnfocusedBorder = paneBorder(colorMuted)

	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(colorHelp)

	// StyleSelected highlights the selected list row.
	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
)

// Task status styles, shared by the task list and the progress pane.
var (
	StyleStatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	StyleStatusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	StyleStatusSkipped  = lipgloss.NewStyle().Foreground(lipgloss.Color("magenta"))
	StyleStatusPending  = lipgloss.NewStyle().Foreground(colorMuted)
)

type statusGlyph struct {
	icon  string
	style lipgloss.Style
}

var statusGlyphs = map[string]statusGlyph{
	"running":   {"●", StyleStatusRunning},
	"retrying":  {"↻", StyleStatusRunning},
	"completed": {"✓", StyleStatusComplete},
	"failed":    {"✗", StyleStatusFailed},
	"skipped":   {"⊘", StyleStatusSkipped},
}

func paneBorder(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}
