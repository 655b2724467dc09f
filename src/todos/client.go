package todos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Is maps the server's answers back onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrSimulated:
		return e.StatusCode == http.StatusInternalServerError && e.Message == simulatedMessage
	}
	return false
}

var _ Service = (*Client)(nil)

// Client talks to NewHandler over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL
// (for example "http://localhost:8080"). A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) List(ctx context.Context) ([]Todo, error) {
	var list []Todo
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return list, nil
}

func (c *Client) Create(ctx context.Context, todo Todo, simulateFailure bool) (Todo, error) {
	var created Todo
	req := createRequest{Todo: todo, SimulateFailure: simulateFailure}
	if err := c.do(ctx, http.MethodPost, "/api/todos", req, &created); err != nil {
		return Todo{}, fmt.Errorf("failed to add todo: %w", err)
	}
	return created, nil
}

func (c *Client) Delete(ctx context.Context, id string, simulateFailure bool) error {
	req := deleteRequest{SimulateFailure: simulateFailure}
	if err := c.do(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), req, nil); err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return nil
}

func (c *Client) Patch(ctx context.Context, id string, updates Updates, simulateFailure bool) (Todo, error) {
	var patched Todo
	req := patchRequest{Updates: updates, SimulateFailure: simulateFailure}
	if err := c.do(ctx, http.MethodPatch, "/api/todos/"+url.PathEscape(id), req, &patched); err != nil {
		return Todo{}, fmt.Errorf("failed to update todo: %w", err)
	}
	return patched, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
