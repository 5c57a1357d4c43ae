package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ddtcms/internal/api"
	"ddtcms/pkg/logging"
)

const subsystem = "Client"

// DefaultTimeout bounds each request to the management server. The engines
// treat a timeout like any other transient remote failure.
const DefaultTimeout = 15 * time.Second

// Client talks JSON over HTTP to the management server. It implements both
// api.StepsAPI and api.ExecutionAPI.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given server base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Update issues a partial field update for a durable step.
func (c *Client) Update(ctx context.Context, scenarioID, stepID int64, fields map[string]interface{}) error {
	url := fmt.Sprintf("%s/scenarios/%d/steps/%d", c.baseURL, scenarioID, stepID)
	return c.doJSON(ctx, http.MethodPatch, url, fields, nil, api.ErrStepNotFound)
}

// Sync performs the full-collection upsert and returns the canonical list.
func (c *Client) Sync(ctx context.Context, req api.SyncRequest) ([]api.StepRecord, error) {
	url := fmt.Sprintf("%s/scenarios/%d/steps", c.baseURL, req.ScenarioID)
	var fresh []api.StepRecord
	if err := c.doJSON(ctx, http.MethodPut, url, req, &fresh, nil); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Delete removes a durable step.
func (c *Client) Delete(ctx context.Context, scenarioID, stepID int64) error {
	url := fmt.Sprintf("%s/scenarios/%d/steps/%d", c.baseURL, scenarioID, stepID)
	return c.doJSON(ctx, http.MethodDelete, url, nil, nil, api.ErrStepNotFound)
}

// Submit enqueues a test run.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	var resp api.SubmitResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/runs", req, &resp, nil); err != nil {
		return api.SubmitResponse{}, err
	}
	return resp, nil
}

// GetStatus polls a submitted run.
func (c *Client) GetStatus(ctx context.Context, runID int64) (api.RunStatusResponse, error) {
	url := fmt.Sprintf("%s/runs/%d", c.baseURL, runID)
	var resp api.RunStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp, api.ErrRunNotFound); err != nil {
		return api.RunStatusResponse{}, err
	}
	return resp, nil
}

// doJSON sends one request and decodes the response into out when out is
// non-nil. A 404 maps to notFound when given; other non-2xx statuses become
// errors carrying a snippet of the body.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out interface{}, notFound error) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.Debug(subsystem, "%s %s", method, url)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to management server failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return fmt.Errorf("%s %s: %w", method, url, notFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("management server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
