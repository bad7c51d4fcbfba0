// Package client talks to a running bridge over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"phobos.org.uk/groqbridge/internal/api"
	"phobos.org.uk/groqbridge/internal/runner"
)

// Client sends prompts to a bridge
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the bridge at baseURL
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Invocation is the bridge's record of one prompt
type Invocation struct {
	ID            string         `json:"invocation_id"`
	PromptPreview string         `json:"prompt_preview"`
	Model         string         `json:"model"`
	ModelID       string         `json:"model_id"`
	Phase         string         `json:"phase"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	Response      string         `json:"response"`
	Result        *runner.Result `json:"result"`
}

// Succeeded reports whether the script exited zero.
func (i *Invocation) Succeeded() bool {
	return i.Result != nil && i.Result.Succeeded()
}

// APIError is a non-2xx response from the bridge
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsBusy reports whether err is the bridge refusing a second invocation.
func IsBusy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == api.ErrorBusy
}

// Invoke submits a prompt and blocks until the script finishes.
// A script failure is returned in the Invocation, not as an error.
func (c *Client) Invoke(ctx context.Context, prompt, model string) (*Invocation, error) {
	var inv Invocation
	if err := c.do(ctx, http.MethodPost, "/invoke", api.InvokeRequest{Prompt: prompt, Model: model}, &inv); err != nil {
		return nil, fmt.Errorf("invoking: %w", err)
	}
	return &inv, nil
}

// Last fetches the most recently finished invocation
func (c *Client) Last(ctx context.Context) (*Invocation, error) {
	var inv Invocation
	if err := c.do(ctx, http.MethodGet, "/invocations/last", nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Models lists the selectable models
func (c *Client) Models(ctx context.Context) ([]api.ModelInfo, error) {
	var resp struct {
		Models []api.ModelInfo `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Status gets the bridge status
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Shutdown asks the bridge to stop. Without force the bridge refuses while
// an invocation is running.
func (c *Client) Shutdown(ctx context.Context, force bool) error {
	return c.do(ctx, http.MethodPost, "/shutdown", map[string]any{"force": force}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Code = ""
			apiErr.Message = string(bytes.TrimSpace(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
