package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/etlrun/internal/config"
	"github.com/aristath/etlrun/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneDAG
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane    TaskPaneModel
	dagPane     DAGPaneModel
	configPane  ConfigPaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	width       int
	height      int
	quitting    bool
	showConfig  bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, cfg *config.Config) Model {
	return Model{
		taskPane:    NewTaskPaneModel(),
		dagPane:     NewDAGPaneModel(),
		configPane:  NewConfigPaneModel(cfg),
		focusedPane: PaneTasks,
		eventSub:    eventBus.SubscribeAll(256),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The config overlay is modal
		if m.showConfig {
			switch msg.String() {
			case KeyConfig, KeyEsc:
				m.showConfig = false
				m.configPane.SetVisible(false)
			case KeyCtrlC:
				m.quitting = true
				return m, tea.Quit
			default:
				var cmd tea.Cmd
				m.configPane, cmd = m.configPane.Update(msg)
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyConfig:
			m.showConfig = true
			m.configPane.SetVisible(true)

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneDAG
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.configPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskStartedEvent, events.TaskRetryingEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.TaskSkippedEvent, events.EntryPublishedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.RunStartedEvent, events.DAGProgressEvent, events.RunFinishedEvent:
		var cmd tea.Cmd
		m.dagPane, cmd = m.dagPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showConfig {
		return m.configPane.View()
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.dagPane.View())

	finished, _ := m.dagPane.Finished()
	return lipgloss.JoinVertical(lipgloss.Left, panes, HelpView(finished))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.dagPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.dagPane.SetFocused(m.focusedPane == PaneDAG)
}
