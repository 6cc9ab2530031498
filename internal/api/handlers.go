package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/reaper"
	"github.com/charliek/sidecar/internal/supervisor"
)

// Controller is the daemon supervisor as seen by the API
type Controller interface {
	Start(ctx context.Context, mode domain.DaemonMode) (supervisor.StartResult, error)
	Stop(ctx context.Context) reaper.Report
	Sweep(ctx context.Context) reaper.Report
	InstallSimulationDeps(ctx context.Context) error
	Status() domain.DaemonStatus
	Logs() []string
}

// Subscriber delivers published events
type Subscriber interface {
	Subscribe(channels ...string) (string, <-chan domain.Event)
	Unsubscribe(id string)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	controller Controller
	events     Subscriber
	configFile string
	shutdownFn func()
	logger     *zap.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(ctrl Controller, events Subscriber, configFile string, shutdownFn func(), logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		controller: ctrl,
		events:     events,
		configFile: configFile,
		shutdownFn: shutdownFn,
		logger:     logger,
	}
}

// GetStatus handles GET /api/v1/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ToStatusResponse(h.controller.Status(), h.configFile))
}

// StartDaemon handles POST /api/v1/daemon/start
func (h *Handlers) StartDaemon(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				Code:  domain.ErrCodeInvalidRequest,
			})
			return
		}
	}

	mode := domain.ModeFromSim(req.Sim)
	if q := r.URL.Query().Get("mode"); q != "" {
		parsed, err := domain.ParseMode(q)
		if err != nil {
			h.writeError(w, err)
			return
		}
		mode = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DefaultRequestTimeout)
	defer cancel()

	result, err := h.controller.Start(ctx, mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ToStartResponse(result))
}

// StopDaemon handles POST /api/v1/daemon/stop
func (h *Handlers) StopDaemon(w http.ResponseWriter, r *http.Request) {
	report := h.controller.Stop(r.Context())
	h.writeJSON(w, http.StatusOK, ToSweepResponse(report, "Daemon stopped successfully"))
}

// Sweep handles POST /api/v1/sweep
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	report := h.controller.Sweep(r.Context())
	h.writeJSON(w, http.StatusOK, ToSweepResponse(report, "Sweep complete"))
}

// InstallSimulation handles POST /api/v1/simulation/install
func (h *Handlers) InstallSimulation(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.InstallSimulationDeps(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Simulation dependency installation started"})
}

// GetLogs handles GET /api/v1/logs
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	entries := h.controller.Logs()
	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: entries, Count: len(entries)})
}

// Shutdown handles POST /api/v1/shutdown
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Shutting down"})

	// Trigger shutdown asynchronously
	go func() {
		time.Sleep(100 * time.Millisecond) // Let response complete
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

// writeError writes an error response
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorCode(err)
	message := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSpawnFailed), errors.Is(err, domain.ErrInstallFailed):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrShutdownInProgress):
		status = http.StatusServiceUnavailable
	default:
		// Unknown errors are logged and returned with a sanitized message
		h.logger.Error("internal error", zap.Error(err))
		message = "an internal error occurred"
	}

	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
