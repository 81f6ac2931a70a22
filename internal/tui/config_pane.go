package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/aristath/etlrun/internal/config"
)

const masked = "********"

// ConfigPaneModel is a read-only overlay with the effective configuration.
type ConfigPaneModel struct {
	viewport viewport.Model
	content  string
	width    int
	height   int
	visible  bool
}

// NewConfigPaneModel renders cfg as YAML with secrets masked.
func NewConfigPaneModel(cfg *config.Config) ConfigPaneModel {
	return ConfigPaneModel{
		viewport: viewport.New(0, 0),
		content:  renderConfig(cfg),
	}
}

func renderConfig(cfg *config.Config) string {
	if cfg == nil {
		return "(no configuration)"
	}
	shown := *cfg
	if shown.Mail.SMTP.Password != "" {
		shown.Mail.SMTP.Password = masked
	}
	if shown.Store.Redis.Password != "" {
		shown.Store.Redis.Password = masked
	}
	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Sprintf("cannot render configuration: %v", err)
	}
	return string(out)
}

// Update scrolls the overlay.
func (m ConfigPaneModel) Update(msg tea.Msg) (ConfigPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the overlay.
func (m ConfigPaneModel) View() string {
	if !m.visible {
		return ""
	}
	title := StyleTitle.Render("Configuration (s/esc: close)")
	return StyleFocusedBorder.
		Width(max(m.width-2, 10)).
		Height(max(m.height-2, 5)).
		Render(title + "\n\n" + m.viewport.View())
}

// SetSize updates the overlay dimensions.
func (m *ConfigPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-6, 3)
	m.viewport.SetContent(m.content)
}

// SetVisible shows or hides the overlay.
func (m *ConfigPaneModel) SetVisible(visible bool) {
	m.visible = visible
	if visible {
		m.viewport.SetContent(m.content)
		m.viewport.GotoTop()
	}
}

// IsVisible reports whether the overlay is shown.
func (m ConfigPaneModel) IsVisible() bool {
	return m.visible
}
