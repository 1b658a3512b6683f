// Package sdk provides the client-side library for the folio catalogue.
// It talks to a folio-stored daemon over HTTP, or runs the storage engine in-process.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/folio-dev/folio/pkg/schema"
)

const projectsPath = "/v1/projects"

// APIError is a non-2xx answer from the server other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("folio api: %d %s", e.Status, e.Message)
}

// Client is a remote client for a folio daemon.
// It implements the CollectionStore interface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retries int
	backoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent on mutating requests.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithClientHTTP replaces the underlying http.Client.
func WithClientHTTP(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how often a GET is attempted and the base delay between attempts.
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.backoff = backoff
	}
}

// Connect returns a client for the daemon at baseURL, e.g. "http://127.0.0.1:1234".
func Connect(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches the catalogue.
func (c *Client) List(ctx context.Context) ([]schema.Collection, error) {
	body, err := c.get(ctx, projectsPath)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return nil, ErrLoadFailed
	}
	var out []schema.Collection
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decoding catalogue: %w", err)
	}
	return out, nil
}

// Upsert replaces the record with the same id, or appends it.
// The returned catalogue is read back after the write and may include concurrent changes.
func (c *Client) Upsert(ctx context.Context, record schema.Collection) ([]schema.Collection, error) {
	if _, err := c.send(ctx, http.MethodPost, record); err != nil {
		return nil, err
	}
	return c.List(ctx)
}

// Update replaces the record with the same id. An unknown id is an *APIError with status 404.
func (c *Client) Update(ctx context.Context, record schema.Collection) ([]schema.Collection, error) {
	if _, err := c.send(ctx, http.MethodPut, record); err != nil {
		return nil, err
	}
	return c.List(ctx)
}

// Delete removes the record at id; the server renumbers the records after it.
func (c *Client) Delete(ctx context.Context, id int) ([]schema.Collection, error) {
	if _, err := c.send(ctx, http.MethodDelete, map[string]any{"id": id}); err != nil {
		return nil, err
	}
	return c.List(ctx)
}

// Status returns the daemon's liveness message.
func (c *Client) Status(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/v1/folio")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// get retries transport errors with a linear backoff. HTTP error answers are not retried.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for i := 0; i < c.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		body, err := c.do(req)
		if err == nil {
			return body, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) || errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("GET %s failed after %d attempts: %w", path, c.retries, lastErr)
}

func (c *Client) send(ctx context.Context, method string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+projectsPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage prefers the "error" field of a JSON body and falls back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
