package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/etlrun/internal/events"
)

// TaskState is what the pane knows about one task instance.
type TaskState struct {
	TaskID   string
	Name     string
	Status   string // "running", "retrying", "completed", "failed", "skipped"
	Attempts int
	Log      []string
	Started  time.Time
	Duration time.Duration
}

// TaskPaneModel lists task instances and shows the log of the selected one.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string // first-seen order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces viewport refreshes while entries stream in.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.refresh()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refresh()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.track(msg.TaskID)
		task.Name = msg.Name
		task.Status = "running"
		task.Started = msg.Timestamp
		task.Log = append(task.Log, fmt.Sprintf("%s started", msg.Timestamp.Format(time.TimeOnly)))
		m.touched(msg.TaskID)

	case events.TaskRetryingEvent:
		task := m.track(msg.TaskID)
		task.Status = "retrying"
		task.Attempts = msg.Attempt
		task.Log = append(task.Log, fmt.Sprintf("attempt %d failed: %v (retry in %v)", msg.Attempt, msg.Err, msg.Wait))
		m.touched(msg.TaskID)

	case events.EntryPublishedEvent:
		task := m.track(msg.TaskID)
		task.Log = append(task.Log, fmt.Sprintf("published %s (%d bytes)", msg.Label, msg.Size))
		if m.selectedTaskID() == msg.TaskID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		task := m.track(msg.TaskID)
		task.Status = "completed"
		task.Attempts = msg.Attempts
		task.Duration = msg.Duration
		task.Log = append(task.Log, fmt.Sprintf("[Completed in %v after %d attempt(s)]", msg.Duration, msg.Attempts))
		m.touched(msg.TaskID)

	case events.TaskFailedEvent:
		task := m.track(msg.TaskID)
		task.Status = "failed"
		task.Attempts = msg.Attempts
		task.Duration = msg.Duration
		task.Log = append(task.Log, fmt.Sprintf("[Failed: %v]", msg.Err))
		m.touched(msg.TaskID)

	case events.TaskSkippedEvent:
		task := m.track(msg.TaskID)
		task.Status = "skipped"
		task.Log = append(task.Log, "[Skipped: "+msg.Reason+"]")
		m.touched(msg.TaskID)

	case tickMsg:
		if msg.tag == m.updateTag {
			m.refresh()
		}
	}

	return m, cmd
}

// Task returns the state of taskID.
func (m TaskPaneModel) Task(taskID string) (TaskState, bool) {
	task, ok := m.tasks[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) track(taskID string) *TaskState {
	task, ok := m.tasks[taskID]
	if !ok {
		task = &TaskState{TaskID: taskID, Name: taskID}
		m.tasks[taskID] = task
		m.order = append(m.order, taskID)
		if len(m.order) == 1 {
			m.selectedIdx = 0
		}
	}
	return task
}

func (m *TaskPaneModel) touched(taskID string) {
	if m.selectedTaskID() == taskID {
		m.refresh()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 25
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, taskID := range m.order {
		task := m.tasks[taskID]
		name := task.Name
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator. Unknown statuses render
// as pending.
func StatusIcon(status string) string {
	g, ok := statusGlyphs[status]
	if !ok {
		return StyleStatusPending.Render("○")
	}
	return g.style.Render(g.icon)
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// refresh shows the selected task's log, scrolled to the end.
func (m *TaskPaneModel) refresh() {
	task, ok := m.tasks[m.selectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-25-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
