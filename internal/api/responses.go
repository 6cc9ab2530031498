package api

import (
	"time"

	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/reaper"
	"github.com/charliek/sidecar/internal/supervisor"
)

// APIVersion is reported by GET /status
const APIVersion = "v1"

// StatusResponse represents the response for GET /status
type StatusResponse struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
	Mode          string `json:"mode,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ConfigFile    string `json:"config_file,omitempty"`
	APIVersion    string `json:"api_version"`
}

// StartRequest is the body of POST /daemon/start
type StartRequest struct {
	Sim bool `json:"sim"`
}

// StartResponse represents the response for POST /daemon/start
type StartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid"`
	Mode    string `json:"mode"`
	Skipped bool   `json:"skipped"`
}

// SweepResponse reports the PIDs a sweep signalled
type SweepResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Terminated      []int  `json:"terminated"`
	KilledOnPort    []int  `json:"killed_on_port"`
	KilledSignature []int  `json:"killed_signature"`
	DurationMillis  int64  `json:"duration_ms"`
}

// LogsResponse represents the response for GET /logs. Each entry has the
// form "<unix_millis>|<message>".
type LogsResponse struct {
	Logs  []string `json:"logs"`
	Count int      `json:"count"`
}

// MessageResponse is a success flag with a human readable message
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToStatusResponse converts a daemon status
func ToStatusResponse(status domain.DaemonStatus, configFile string) StatusResponse {
	resp := StatusResponse{
		Running:       status.Running,
		PID:           status.PID,
		Mode:          string(status.Mode),
		UptimeSeconds: status.UptimeSeconds(),
		ConfigFile:    configFile,
		APIVersion:    APIVersion,
	}
	if !status.StartedAt.IsZero() {
		resp.StartedAt = status.StartedAt.Format(time.RFC3339)
	}
	return resp
}

// ToStartResponse converts a start result
func ToStartResponse(result supervisor.StartResult) StartResponse {
	msg := "Daemon started successfully"
	if result.Skipped {
		msg = "Daemon already running"
	}
	return StartResponse{
		Success: true,
		Message: msg,
		PID:     result.PID,
		Mode:    string(result.Mode),
		Skipped: result.Skipped,
	}
}

// ToSweepResponse converts a sweep report
func ToSweepResponse(report reaper.Report, message string) SweepResponse {
	return SweepResponse{
		Success:         true,
		Message:         message,
		Terminated:      nonNil(report.Terminated),
		KilledOnPort:    nonNil(report.KilledOnPort),
		KilledSignature: nonNil(report.KilledSignature),
		DurationMillis:  report.Duration.Milliseconds(),
	}
}

func nonNil(pids []int) []int {
	if pids == nil {
		return []int{}
	}
	return pids
}
