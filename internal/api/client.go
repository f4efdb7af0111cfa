// Package api is the REST client for the photo-sharing backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pellicule/internal/observability"

	"go.opentelemetry.io/otel/propagation"
)

// ErrNotFound matches any *Error with a 404 status.
var ErrNotFound = errors.New("api: not found")

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Endpoint   string
	// Message is the human-readable text the server returned, or the status text.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, e.Message)
}

// Is reports whether target is ErrNotFound and the response was a 404.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TokenSource returns the bearer token for the current identity, or "".
type TokenSource func() string

// Client issues REST calls against one backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     *observability.APILogger

	mu    sync.RWMutex
	token TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout on the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request and error records.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) { c.log = observability.NewAPILogger(l) }
}

// NewClient returns a Client for baseURL (e.g. "http://localhost:3000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     observability.NewAPILogger(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource installs the bearer token provider. The session store is built on
// top of the client, so the source is wired after construction.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.token = ts
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	ts := c.token
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts()
}

// do sends one request. endpoint is a low-cardinality label ("photo.list"), path the
// concrete URL path. body is JSON-encoded when non-nil and out decoded when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint, path string, body, out any) error {
	span, ctx := observability.StartAPISpan(ctx, method, endpoint, path)
	defer span.End()
	track := observability.TrackAPIRequest(endpoint)

	err := c.send(ctx, method, endpoint, path, body, out)
	if err != nil {
		span.SetError(err)
		var apiErr *Error
		if errors.As(err, &apiErr) {
			track(strconv.Itoa(apiErr.StatusCode))
		} else {
			track("error")
		}
		c.log.LogError(ctx, method, endpoint, err)
		return err
	}
	track("ok")
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := observability.ExtractCorrelationID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	observability.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.LogRequest(ctx, method, endpoint, resp.StatusCode, nil)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, endpoint)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

func decodeError(resp *http.Response, endpoint string) error {
	apiErr := &Error{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
