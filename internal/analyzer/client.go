// Package analyzer implements the pull-based worker, the worker pool and the
// autoscaling supervisor.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnimatorJoe/distributor/internal/core"
	"github.com/AnimatorJoe/distributor/internal/distributor"
)

// Client talks to the distributor's HTTP/JSON API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given distributor base URL. timeout
// applies per call; zero selects the 10s worker default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GetWork asks the distributor for one task.
func (c *Client) GetWork(ctx context.Context, req core.WorkRequest) (*core.WorkResponse, error) {
	var resp core.WorkResponse
	if err := c.post(ctx, "/get_work", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendStatus reports task progress. An in_progress status doubles as the
// heartbeat.
func (c *Client) SendStatus(ctx context.Context, update core.StatusUpdate) error {
	return c.post(ctx, "/status", update, nil)
}

// Submit sends one log record and returns the created task id.
func (c *Client) Submit(ctx context.Context, rec *core.LogRecord) (string, error) {
	var resp struct {
		Status string `json:"status"`
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, "/submit", rec, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Metrics fetches the scaling snapshot.
func (c *Client) Metrics(ctx context.Context) (*core.ScalingMetrics, error) {
	var m core.ScalingMetrics
	if err := c.get(ctx, "/metrics", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Stats fetches the operator counter snapshot.
func (c *Client) Stats(ctx context.Context) (*distributor.Stats, error) {
	var s distributor.Stats
	if err := c.get(ctx, "/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
