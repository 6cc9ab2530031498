package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/sidecar/internal/domain"
)

// nearBottomThreshold is the scroll percentage (0.0-1.0) at which we consider
// the viewport to be "near" the bottom for auto-follow purposes.
const nearBottomThreshold = 0.98

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		m.updateViewport()

	case EventMsg:
		m.handleEvent(domain.Event(msg))

	case StatusMsg:
		m.status = msg.Status
		m.statusErr = msg.Err

	case TickMsg:
		cmds = append(cmds, refreshStatus(m.client), tickCmd())

	case ActionResultMsg:
		m.pending = ""
		m.lastAction = msg.Action
		m.lastActionErr = msg.Err
		cmds = append(cmds, refreshStatus(m.client), actionResultClearCmd())

	case ActionResultClearMsg:
		m.lastAction = ""
		m.lastActionErr = nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeFilter:
		return m.handleFilterKey(msg)
	case ModeHelp:
		m.mode = ModeNormal
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "s", "S":
		if m.pending != "" {
			return m, nil
		}
		sim := msg.String() == "S"
		m.pending = "Starting..."
		if sim {
			m.pending = "Installing simulation dependencies and starting..."
		}
		return m, startCmd(m.client, sim)

	case "x":
		if m.pending != "" {
			return m, nil
		}
		m.pending = "Stopping..."
		return m, stopCmd(m.client)

	case "c":
		m.events = m.events[:0]
		m.updateViewport()
		return m, nil

	case "?":
		m.mode = ModeHelp
		return m, nil

	case "/":
		m.mode = ModeFilter
		m.textInput.SetValue("")
		m.textInput.Focus()
		return m, nil

	case "esc":
		m.filterPattern = ""
		m.updateViewport()
		return m, nil
	}

	m.handleNavigationKey(msg)
	return m, nil
}

// handleFilterKey handles keys while the filter is being typed
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ModeNormal
		m.textInput.Blur()
		m.filterPattern = ""
		m.updateViewport()
		return m, nil

	case "enter":
		m.filterPattern = m.textInput.Value()
		m.mode = ModeNormal
		m.textInput.Blur()
		m.updateViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	// Live update filter
	m.filterPattern = m.textInput.Value()
	m.updateViewport()
	return m, cmd
}

// handleNavigationKey handles scrolling keys
func (m *Model) handleNavigationKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "up", "k":
		m.viewport.LineUp(1)
		m.followMode = false
	case "down", "j":
		m.viewport.LineDown(1)
	case "pgup":
		m.viewport.HalfViewUp()
		m.followMode = false
	case "pgdown":
		m.viewport.HalfViewDown()
	case "home", "g":
		m.viewport.GotoTop()
		m.followMode = false
	case "end", "G":
		m.viewport.GotoBottom()
		m.followMode = true
	case "F":
		m.followMode = !m.followMode
		if m.followMode {
			m.viewport.GotoBottom()
		}
	default:
		return false
	}
	return true
}

// handleWindowSize handles window resize messages
func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 3 // Status panel
	footerHeight := 2 // Status bar

	viewportHeight := msg.Height - headerHeight - footerHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, viewportHeight)
		m.viewport.YPosition = headerHeight
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}
}

// handleEvent appends an event, keeping at most maxEvents
func (m *Model) handleEvent(ev domain.Event) {
	wasNearBottom := m.isNearBottom()

	m.events = append(m.events, ev)
	if len(m.events) > maxEvents {
		trimmed := make([]domain.Event, maxEvents)
		copy(trimmed, m.events[len(m.events)-maxEvents:])
		m.events = trimmed
	}
	m.updateViewport()

	if wasNearBottom {
		m.followMode = true
		m.viewport.GotoBottom()
	} else if m.followMode {
		m.viewport.GotoBottom()
	}
}

func (m *Model) isNearBottom() bool {
	if m.viewport.AtBottom() {
		return true
	}
	return m.viewport.ScrollPercent() >= nearBottomThreshold
}

func (m *Model) updateViewport() {
	entries := m.filteredEvents()
	lines := make([]string, 0, len(entries))
	for _, ev := range entries {
		lines = append(lines, formatEvent(ev))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// filteredEvents returns the events matching the filter pattern
func (m *Model) filteredEvents() []domain.Event {
	if m.filterPattern == "" {
		return m.events
	}
	var result []domain.Event
	for _, ev := range m.events {
		if containsIgnoreCase(ev.Payload, m.filterPattern) {
			result = append(result, ev)
		}
	}
	return result
}

// containsIgnoreCase performs a case-insensitive substring search
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// truncateError truncates an error message to maxLen characters
func truncateError(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen-3] + "..."
	}
	return msg
}
