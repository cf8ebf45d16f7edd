// Package designclient talks to the design service: fetch a design by id, create it, update it.
package designclient

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
	"time"
)

// Design is the record returned by the service.
type Design struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Size       string          `json:"size"`
	CanvasData json.RawMessage `json:"canvasData"`
	ImageURL   string          `json:"imageUrl,omitempty"`
	Version    int             `json:"version,omitempty"`
}

// Payload is the create/update body. On create, ID is an optional client-chosen id the service
// adopts; repeating a create with the same ID does not make a second design.
type Payload struct {
	ID         string `json:"id,omitempty"`
	Prompt     string `json:"prompt"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Size       string `json:"size"`
	CanvasData string `json:"canvasData"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Design *Design `json:"design"`
	} `json:"data"`
	Error string `json:"error"`
}

// APIError is a non-success answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("design api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("design api: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

var ErrMalformedResponse = errors.New("design api: malformed response")

// IsRetryable classifies an error from this package. Transport failures are retryable,
// context cancellation is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return true
}

// Client is an HTTP client for the design endpoints under BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL, e.g. http://localhost:3000/api/v1.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Get(ctx context.Context, id string) (*Design, error) {
	return c.do(ctx, http.MethodGet, "/designs/"+url.PathEscape(id), nil)
}

func (c *Client) Create(ctx context.Context, p Payload) (*Design, error) {
	return c.do(ctx, http.MethodPost, "/designs", &p)
}

func (c *Client) Update(ctx context.Context, p Payload) (*Design, error) {
	if p.ID == "" {
		return nil, errors.New("design api: update without id")
	}
	return c.do(ctx, http.MethodPut, "/designs", &p)
}

func (c *Client) do(ctx context.Context, method, path string, body *Payload) (*Design, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if !env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if env.Data.Design == nil {
		return nil, fmt.Errorf("%w: no design in response", ErrMalformedResponse)
	}
	return env.Data.Design, nil
}
