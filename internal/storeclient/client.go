// Package storeclient talks to the message store over HTTP.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/balaji-balu/codeboard/pkg/model"
)

var (
	ErrMalformed = errors.New("malformed store response")
	ErrBlankCode = errors.New("code is blank")
	ErrRejected  = errors.New("store rejected request")
)

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store returned %d: %s", e.Code, e.Body)
}

type Client struct {
	base string
	http *http.Client
	now  func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{},
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

type pollWire struct {
	Messages *[]model.Message `json:"messages"`
	LastID   *int64           `json:"last_id"`
}

// Poll fetches every message with id greater than sinceID along with the
// store's current high-water id.
func (c *Client) Poll(ctx context.Context, sinceID int64) (model.PollResponse, error) {
	q := url.Values{}
	q.Set("last_id", strconv.FormatInt(sinceID, 10))
	// cache buster for intermediaries that ignore no-cache
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/events?"+q.Encode(), nil)
	if err != nil {
		return model.PollResponse{}, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	var wire pollWire
	if err := c.do(req, &wire); err != nil {
		return model.PollResponse{}, err
	}
	if wire.Messages == nil || wire.LastID == nil {
		return model.PollResponse{}, fmt.Errorf("%w: missing messages or last_id", ErrMalformed)
	}
	return model.PollResponse{Messages: *wire.Messages, LastID: *wire.LastID}, nil
}

// LastID returns the store's current high-water id.
func (c *Client) LastID(ctx context.Context) (int64, error) {
	resp, err := c.Poll(ctx, 0)
	if err != nil {
		return 0, err
	}
	return resp.LastID, nil
}

// Append stores one code. Blank codes are refused before any request is
// made.
func (c *Client) Append(ctx context.Context, code string, timestamp int64, nodeID string) (int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrBlankCode
	}
	body, err := json.Marshal(model.AppendRequest{Code: code, Timestamp: timestamp, NodeID: nodeID})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/events", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out model.AppendResponse
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	if !out.Success {
		return 0, fmt.Errorf("%w: %s", ErrRejected, out.Error)
	}
	return out.MessageID, nil
}

// Clear wipes the store. There is no undo.
func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/clear", nil)
	if err != nil {
		return err
	}
	var out model.ClearResponse
	if err := c.do(req, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrRejected, out.Error)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
