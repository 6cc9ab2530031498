package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	// Daemon state colors
	runningColor = lipgloss.Color("10") // Green
	stoppedColor = lipgloss.Color("8")  // Gray
	pendingColor = lipgloss.Color("11") // Yellow

	// Event channel colors
	stdoutColor     = lipgloss.Color("14") // Cyan
	stderrColor     = lipgloss.Color("9")  // Red
	terminatedColor = lipgloss.Color("11") // Yellow
	hostColor       = lipgloss.Color("13") // Magenta

	// UI colors
	headerBg   = lipgloss.Color("235")
	statusBg   = lipgloss.Color("236")
	helpBg     = lipgloss.Color("234")
	errorColor = lipgloss.Color("9")
	dimColor   = lipgloss.Color("8")
)

// Styles
var (
	runningStyle = lipgloss.NewStyle().
			Foreground(runningColor).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(stoppedColor)

	pendingStyle = lipgloss.NewStyle().
			Foreground(pendingColor)

	stdoutLabelStyle = lipgloss.NewStyle().
				Foreground(stdoutColor)

	stderrLineStyle = lipgloss.NewStyle().
			Foreground(stderrColor)

	terminatedStyle = lipgloss.NewStyle().
			Foreground(terminatedColor).
			Bold(true)

	hostLabelStyle = lipgloss.NewStyle().
			Foreground(hostColor)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Background(headerBg).
			Padding(0, 1).
			MarginBottom(1)

	// Status bar style
	statusStyle = lipgloss.NewStyle().
			Background(statusBg).
			Padding(0, 1)

	// Help overlay style
	helpStyle = lipgloss.NewStyle().
			Background(helpBg).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	// Error indicator style
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(errorColor).
			Bold(true)

	// Dim style for timestamps
	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)
)
