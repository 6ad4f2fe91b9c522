// Package ctl implements flickctl, the operator client for a running flickd.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"flickd/pkg/types"
)

// APIError is a non-2xx reply from flickd.
type APIError struct {
	Status int
	Body   types.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Reason != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Reason, e.Body.Error)
	}
	if e.Body.Error != "" {
		return fmt.Sprintf("%d: %s", e.Status, e.Body.Error)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

// Client talks to the flickd HTTP and WebSocket API.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient parses server, e.g. http://localhost:8080.
func NewClient(server string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", server)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) url(path string) string { return c.base.String() + path }

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &st)
	return st, err
}

// Control posts to a control route such as /training/start.
func (c *Client) Control(ctx context.Context, path string) (types.OKResponse, error) {
	var ok types.OKResponse
	err := c.do(ctx, http.MethodPost, path, &ok)
	return ok, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		apiErr := &APIError{Status: res.StatusCode}
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&apiErr.Body)
		return apiErr
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Watch streams events from /events to fn until ctx is done, the server
// closes the socket, or fn returns false. cmds are sent once connected.
func (c *Client) Watch(ctx context.Context, cmds []types.Command, fn func(types.Event) bool) error {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path += "/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, cmd := range cmds {
		if err := conn.WriteJSON(cmd); err != nil {
			return fmt.Errorf("send %s: %w", cmd.ID, err)
		}
	}
	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("server closed: %s", ce.Text)
			}
			return err
		}
		if !fn(ev) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}
	}
}
