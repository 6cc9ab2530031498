package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.mode == ModeHelp {
		return helpView()
	}

	var sb strings.Builder
	sb.WriteString(m.statusPanel())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusBar())
	return sb.String()
}

// statusPanel renders the daemon status header
func (m Model) statusPanel() string {
	var state string
	switch {
	case m.statusErr != nil:
		state = errorStyle.Render(" HOST UNREACHABLE ") + " " + truncateError(m.statusErr, maxErrorDisplayLen)
	case m.status == nil:
		state = dimStyle.Render("connecting...")
	case m.status.Running:
		uptime := time.Duration(m.status.UptimeSeconds) * time.Second
		state = runningStyle.Render("running") +
			fmt.Sprintf("  pid %d  mode %s  up %s", m.status.PID, m.status.Mode, uptime)
	default:
		state = stoppedStyle.Render("stopped")
	}

	items := []string{"Daemon: " + state}
	if m.pending != "" {
		items = append(items, pendingStyle.Render(m.pending))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(items, "    "))
	return headerStyle.Render(header)
}

// statusBar renders the bottom status bar
func (m Model) statusBar() string {
	var left string
	switch {
	case m.mode == ModeFilter:
		left = "Filter: " + m.textInput.View()
	case m.lastActionErr != nil:
		left = m.lastAction + " failed: " + truncateError(m.lastActionErr, maxErrorDisplayLen)
	case m.lastAction != "":
		left = m.lastAction
	case m.filterPattern != "":
		left = fmt.Sprintf("Filter: %s (ESC to clear)", m.filterPattern)
	default:
		left = "s: start | S: simulation | x: stop | ? for help"
	}

	followIndicator := "[FOLLOW]"
	if !m.followMode {
		followIndicator = "[PAUSED]"
	}
	right := fmt.Sprintf("%s %d/%d lines", followIndicator, len(m.filteredEvents()), len(m.events))

	leftWidth := m.width - len(right) - 4
	if leftWidth < 0 {
		leftWidth = 0
	}

	leftPart := statusStyle.Width(leftWidth).Render(left)
	rightPart := statusStyle.Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPart, "  ", rightPart)
}

// formatEvent formats a single event line
func formatEvent(ev domain.Event) string {
	ts := ev.Time
	line := strings.TrimRight(ev.Payload, "\n")

	var label string
	switch ev.Channel {
	case constants.ChannelStdout:
		label = stdoutLabelStyle.Render(fmt.Sprintf("%-7s", "daemon"))
	case constants.ChannelStderr:
		label = stdoutLabelStyle.Render(fmt.Sprintf("%-7s", "daemon"))
		line = stderrLineStyle.Render(line)
	case constants.ChannelTerminated:
		label = terminatedStyle.Render(fmt.Sprintf("%-7s", "exit"))
		line = terminatedStyle.Render(line)
	case constants.ChannelHostLog:
		label = hostLabelStyle.Render(fmt.Sprintf("%-7s", "host"))
		if entry, err := domain.ParseLogEntry(ev.Payload); err == nil {
			ts, line = entry.Time(), entry.Message
		}
	default:
		label = dimStyle.Render(fmt.Sprintf("%-7s", ev.Channel))
		line = dimStyle.Render(line)
	}

	return fmt.Sprintf("%s %s %s", dimStyle.Render(ts.Format("15:04:05")), label, line)
}

func helpView() string {
	help := `
Sidecar - Daemon Monitor

Daemon:
  s          Start the daemon
  S          Start in simulation mode
  x          Stop the daemon and sweep its port

Navigation:
  j/↓        Scroll down
  k/↑        Scroll up (pauses auto-follow)
  g/Home     Go to top (pauses auto-follow)
  G/End      Go to bottom (resumes auto-follow)
  PgUp/PgDn  Page up/down
  F          Toggle auto-follow mode

Filtering:
  /          Filter lines (substring)
  ESC        Clear filter

Other:
  c          Clear the output
  ?          Toggle help
  q/Ctrl+C   Quit (host keeps running)

Press any key to close help...
`
	return helpStyle.Render(help)
}
