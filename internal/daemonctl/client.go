package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalogcron/internal/api"
	"catalogcron/internal/config"
)

// ErrAPIDisabled is returned when daemon.api_bind is empty.
var ErrAPIDisabled = errors.New("daemon api is disabled (set daemon.api_bind)")

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the API configured in cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.Daemon.APIBind) == "" {
		return nil, ErrAPIDisabled
	}
	host, port, err := net.SplitHostPort(cfg.Daemon.APIBind)
	if err != nil {
		return nil, fmt.Errorf("daemon.api_bind: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(host, port),
		token:   cfg.Daemon.APIToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue fetches the pending parse queue.
func (c *Client) Queue(ctx context.Context) (*api.QueueListResponse, error) {
	var out api.QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trigger asks the daemon to run routine as soon as it is idle.
func (c *Client) Trigger(ctx context.Context, routine string) error {
	var out api.TriggerResponse
	return c.do(ctx, http.MethodPost, "/api/routines/"+url.PathEscape(routine)+"/run", &out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon api %s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
