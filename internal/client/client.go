// Package client talks to a running scenebridge listener over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/protocol"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL ("http://127.0.0.1:8765" or a bare
// host:port). Token may be empty for an unauthenticated listener.
func New(baseURL, token string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// BaseURL is the normalized listener URL.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is a non-2xx reply that did not carry a command response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("listener returned %d", e.Code)
	}
	return fmt.Sprintf("listener returned %d: %s", e.Code, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return statusErrorFrom(resp.StatusCode, data)
}

func statusErrorFrom(code int, data []byte) error {
	var body protocol.ErrorResponse
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{Code: code, Message: body.Error}
}

// Call runs a command and returns its response. A command that fails on the
// listener is not a Go error: check Success and ErrorKind.
func (c *Client) Call(ctx context.Context, name string, params json.RawMessage) (*protocol.CommandResponse, error) {
	body, err := json.Marshal(protocol.CommandRequest{Type: name, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out protocol.CommandResponse
	decodeErr := json.Unmarshal(data, &out)
	if decodeErr == nil && (out.Success || out.ErrorKind != "") {
		return &out, nil
	}
	// Auth and routing errors carry a plain error body.
	if resp.StatusCode/100 != 2 {
		return nil, statusErrorFrom(resp.StatusCode, data)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &out, nil
}

// Status fetches GET /.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	if err := c.getJSON(ctx, "/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /healthz.
func (c *Client) Health(ctx context.Context) (*protocol.HealthzResponse, error) {
	var out protocol.HealthzResponse
	if err := c.getJSON(ctx, "/healthz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the most recent journal entries, optionally for one
// command name.
func (c *Client) History(ctx context.Context, name string, limit int) ([]protocol.HistoryEntry, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out protocol.HistoryResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Stream is an open /events subscription.
type Stream struct {
	body   io.ReadCloser
	reader *events.Reader
}

// Next blocks for the next event. It returns io.EOF when the listener closes
// the stream.
func (s *Stream) Next() (events.Event, error) { return s.reader.Next() }

func (s *Stream) Close() error { return s.body.Close() }

// Events subscribes to the event stream, resuming after lastID when non-zero.
// types filters by event type prefix.
func (c *Client) Events(ctx context.Context, lastID int64, types ...string) (*Stream, error) {
	path := "/events"
	if len(types) > 0 {
		path += "?types=" + url.QueryEscape(strings.Join(types, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return &Stream{body: resp.Body, reader: events.NewReader(resp.Body)}, nil
}

// WaitHealthy polls /healthz until it answers or ctx ends.
func (c *Client) WaitHealthy(ctx context.Context, every time.Duration) (*protocol.HealthzResponse, error) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		h, err := c.Health(ctx)
		if err == nil {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("listener not healthy: %w", err)
		case <-t.C:
		}
	}
}
