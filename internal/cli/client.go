package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charliek/sidecar/internal/api"
	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
)

// startTimeout covers a simulation start: install wait, settle and sweep
const startTimeout = 2 * time.Minute

// Client is an HTTP client for the sidecar API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client. token may be empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetStatus gets the daemon status
func (c *Client) GetStatus() (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(http.MethodGet, "/api/v1/status", nil, constants.DefaultRequestTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartDaemon asks the host to start the daemon
func (c *Client) StartDaemon(sim bool) (*api.StartResponse, error) {
	var resp api.StartResponse
	if err := c.do(http.MethodPost, "/api/v1/daemon/start", api.StartRequest{Sim: sim}, startTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopDaemon asks the host to stop the daemon
func (c *Client) StopDaemon() (*api.SweepResponse, error) {
	var resp api.SweepResponse
	if err := c.do(http.MethodPost, "/api/v1/daemon/stop", nil, constants.DefaultRequestTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sweep asks the host to run the reaper
func (c *Client) Sweep() (*api.SweepResponse, error) {
	var resp api.SweepResponse
	if err := c.do(http.MethodPost, "/api/v1/sweep", nil, constants.DefaultRequestTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InstallSimulation starts the simulation dependency install
func (c *Client) InstallSimulation() (*api.MessageResponse, error) {
	var resp api.MessageResponse
	if err := c.do(http.MethodPost, "/api/v1/simulation/install", nil, startTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLogs gets the diagnostic log snapshot
func (c *Client) GetLogs() (*api.LogsResponse, error) {
	var resp api.LogsResponse
	if err := c.do(http.MethodGet, "/api/v1/logs", nil, constants.DefaultRequestTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown shuts the host down
func (c *Client) Shutdown() error {
	var resp api.MessageResponse
	return c.do(http.MethodPost, "/api/v1/shutdown", nil, constants.DefaultRequestTimeout, &resp)
}

// StreamEvents follows the event stream until ctx is done or the host closes
// it, calling fn for each event. No channels means all channels.
func (c *Client) StreamEvents(ctx context.Context, channels []string, fn func(domain.Event)) error {
	path := "/api/v1/events"
	if len(channels) > 0 {
		path += "?" + url.Values{"channel": {strings.Join(channels, ",")}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	var ev domain.Event
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event: "):
			ev.Channel = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.Payload); err == nil {
				ev.Time = time.Now()
				fn(ev)
			}
			ev = domain.Event{}
		}
	}
}

func (c *Client) do(method, path string, body interface{}, timeout time.Duration, v interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func decodeError(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Code != "" {
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

// addAuthHeader adds the Authorization header if a token is configured
func (c *Client) addAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
