package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/sidecar/internal/api"
	"github.com/charliek/sidecar/internal/domain"
)

// maxEvents is the maximum number of events to keep in memory
const maxEvents = 1000

// maxErrorDisplayLen is the maximum length of error messages in the status bar
const maxErrorDisplayLen = 60

// actionTimeout bounds a start or stop issued from the TUI. A simulation
// start runs the dependency install first.
const actionTimeout = 2 * time.Minute

// statusInterval is how often the header refreshes
const statusInterval = time.Second

// channelSystem tags messages generated by the TUI itself
const channelSystem = "tui"

// Mode represents the current TUI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeHelp
)

// Client is the API surface the TUI needs from a running host
type Client interface {
	GetStatus() (*api.StatusResponse, error)
	StartDaemon(sim bool) (*api.StartResponse, error)
	StopDaemon() (*api.SweepResponse, error)
	StreamEvents(ctx context.Context, channels []string, fn func(domain.Event)) error
}

// Model is the bubbletea model for the TUI
type Model struct {
	client Client

	// State
	status    *api.StatusResponse
	statusErr error
	events    []domain.Event

	// UI components
	viewport  viewport.Model
	textInput textinput.Model
	mode      Mode

	filterPattern string
	followMode    bool

	// Feedback for the last start/stop
	pending       string
	lastAction    string
	lastActionErr error

	// Dimensions
	width  int
	height int
	ready  bool
}

// NewModel creates a TUI model backed by client
func NewModel(client Client) Model {
	ti := textinput.New()
	ti.Placeholder = "Type to filter..."
	ti.CharLimit = 100
	ti.Width = 40

	return Model{
		client:     client,
		events:     make([]domain.Event, 0),
		textInput:  ti,
		mode:       ModeNormal,
		followMode: true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshStatus(m.client), tickCmd())
}

// EventMsg is sent when an event arrives from the host
type EventMsg domain.Event

// StatusMsg carries a status refresh
type StatusMsg struct {
	Status *api.StatusResponse
	Err    error
}

// TickMsg is sent periodically
type TickMsg time.Time

// ActionResultMsg is sent when a start or stop completes
type ActionResultMsg struct {
	Action string
	Err    error
}

// ActionResultClearMsg clears the action feedback after a delay
type ActionResultClearMsg struct{}

// actionResultClearDelay is how long to show an action result before clearing
const actionResultClearDelay = 3 * time.Second

func actionResultClearCmd() tea.Cmd {
	return tea.Tick(actionResultClearDelay, func(t time.Time) tea.Msg {
		return ActionResultClearMsg{}
	})
}

func refreshStatus(client Client) tea.Cmd {
	return func() tea.Msg {
		status, err := client.GetStatus()
		return StatusMsg{Status: status, Err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// startCmd starts the daemon in the background
func startCmd(client Client, sim bool) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.StartDaemon(sim)
		switch {
		case err != nil:
			return ActionResultMsg{Action: "Start", Err: err}
		case resp.Skipped:
			return ActionResultMsg{Action: "Already running"}
		case sim:
			return ActionResultMsg{Action: "Started (simulation)"}
		}
		return ActionResultMsg{Action: "Started"}
	}
}

// stopCmd stops the daemon in the background
func stopCmd(client Client) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.StopDaemon(); err != nil {
			return ActionResultMsg{Action: "Stop", Err: err}
		}
		return ActionResultMsg{Action: "Stopped"}
	}
}

// systemEvent wraps a TUI-generated notice as an event line
func systemEvent(message string) EventMsg {
	return EventMsg{Channel: channelSystem, Payload: message, Time: time.Now()}
}
