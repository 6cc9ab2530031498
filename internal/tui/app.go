package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/sidecar/internal/domain"
)

// Run starts the TUI against a running host and blocks until the user quits
func Run(client Client) error {
	model := NewModel(client)
	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	go forwardEvents(ctx, p, client)

	_, err := p.Run()

	cancel()
	return err
}

// eventSender is the part of tea.Program used to forward events
type eventSender interface {
	Send(msg tea.Msg)
}

// forwardEvents streams host events into the program until ctx is cancelled.
// A dropped stream is reported as a system line.
func forwardEvents(ctx context.Context, p eventSender, client Client) {
	err := client.StreamEvents(ctx, nil, func(ev domain.Event) {
		p.Send(EventMsg(ev))
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.Send(systemEvent("Error connecting to event stream: " + err.Error()))
		return
	}
	p.Send(systemEvent("Event stream closed"))
}
