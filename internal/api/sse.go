package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/domain"
)

// StreamEvents handles GET /api/v1/events (SSE). Each event is written as
// "event: <channel>" followed by "data: <payload as JSON string>".
// ?channel=a,b limits the stream to those channels.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "streaming not supported",
			Code:  domain.ErrCodeStreamingNotSupported,
		})
		return
	}

	var channels []string
	if c := r.URL.Query().Get("channel"); c != "" {
		channels = strings.Split(c, ",")
	}

	subID, ch := h.events.Subscribe(channels...)
	defer h.events.Unsubscribe(subID)

	// Send initial comment to establish connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	// Slow clients lose events at the subscription buffer; write errors end the stream
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(ev.Payload)
			if err != nil {
				continue
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Channel, data); err != nil {
				h.logger.Debug("SSE write error (client likely disconnected)", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
