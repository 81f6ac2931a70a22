package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/etlrun/internal/events"
)

// DAGPaneModel shows run-level progress.
type DAGPaneModel struct {
	runID      string
	workflowID string
	total      int
	completed  int
	running    int
	failed     int
	skipped    int
	pending    int
	finished   bool
	succeeded  bool
	duration   time.Duration
	width      int
	height     int
	focused    bool
}

// NewDAGPaneModel creates a new DAG pane model.
func NewDAGPaneModel() DAGPaneModel {
	return DAGPaneModel{}
}

// Update handles messages for the DAG pane.
func (m DAGPaneModel) Update(msg tea.Msg) (DAGPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunStartedEvent:
		m = DAGPaneModel{width: m.width, height: m.height, focused: m.focused}
		m.runID = msg.Run
		m.workflowID = msg.WorkflowID
		m.total = msg.Tasks
		m.pending = msg.Tasks

	case events.DAGProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.pending = msg.Pending

	case events.RunFinishedEvent:
		m.finished = true
		m.succeeded = msg.Succeeded
		m.duration = msg.Duration
	}

	return m, nil
}

// Finished reports whether the run ended and whether it succeeded.
func (m DAGPaneModel) Finished() (finished, succeeded bool) {
	return m.finished, m.succeeded
}

// View renders the DAG pane.
func (m DAGPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("DAG Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.runID != "" {
		b.WriteString(fmt.Sprintf("Workflow:  %s\n", m.workflowID))
		b.WriteString(fmt.Sprintf("Run:       %s\n\n", m.runID))
	}

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.skipped))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))

	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := ((m.failed + m.skipped) * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	if m.finished {
		b.WriteString("\n")
		if m.succeeded {
			b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Run succeeded in %v", m.duration.Round(time.Millisecond))))
		} else {
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Run failed after %v", m.duration.Round(time.Millisecond))))
		}
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *DAGPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *DAGPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
