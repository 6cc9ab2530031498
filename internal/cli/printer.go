package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// EventPrinter writes events as colored terminal lines
type EventPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewEventPrinter creates a printer; color adds ANSI escapes
func NewEventPrinter(out io.Writer, color bool) *EventPrinter {
	return &EventPrinter{out: out, color: color}
}

// Print writes one event
func (p *EventPrinter) Print(ev domain.Event) {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	label, labelColor, line, lineColor := "daemon", constants.ColorCyan, strings.TrimRight(ev.Payload, "\n"), ""

	switch ev.Channel {
	case constants.ChannelStderr:
		lineColor = constants.ColorBrightRed
	case constants.ChannelTerminated:
		label, labelColor = "exit", constants.ColorYellow
		lineColor = constants.ColorYellow
	case constants.ChannelHostLog:
		label, labelColor = "host", constants.ColorYellow
		if entry, err := domain.ParseLogEntry(ev.Payload); err == nil {
			ts, line = entry.Time(), entry.Message
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.color {
		fmt.Fprintf(p.out, "%s %-6s | %s\n", ts.Format("15:04:05"), label, line)
		return
	}
	reset := constants.ColorReset
	if lineColor == "" {
		fmt.Fprintf(p.out, "%s %s%-6s%s | %s\n", ts.Format("15:04:05"), labelColor, label, reset, line)
		return
	}
	fmt.Fprintf(p.out, "%s %s%-6s%s | %s%s%s\n", ts.Format("15:04:05"), labelColor, label, reset, lineColor, line, reset)
}

// Drain prints events from ch until it is closed
func (p *EventPrinter) Drain(ch <-chan domain.Event) {
	for ev := range ch {
		p.Print(ev)
	}
}

// printLogEntry prints one "<ms>|<message>" diagnostic entry
func printLogEntry(out io.Writer, raw string) {
	entry, err := domain.ParseLogEntry(raw)
	if err != nil {
		fmt.Fprintln(out, raw)
		return
	}
	fmt.Fprintf(out, "%s %s\n", entry.Time().Format("15:04:05.000"), entry.Message)
}

// formatDuration formats a duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
