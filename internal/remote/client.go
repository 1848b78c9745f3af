// Package remote talks to the coordinator over HTTP. Every call has an
// independent connect timeout and read timeout and is never retried.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/msageha/uri/internal/model"
)

// maxBodySize bounds every response body read.
const maxBodySize int64 = 1 << 20

type Client struct {
	base           string
	http           *http.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// New returns a client for serverBase ("http://host:port").
func New(serverBase string, connectTimeout, readTimeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy:                 nil, // the server base is the only configuration
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
	}
	return &Client{
		base:           strings.TrimRight(serverBase, "/"),
		http:           &http.Client{Transport: transport},
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
	}
}

func (c *Client) Base() string { return c.base }

// requestContext bounds a whole call by connect + read timeout, so a dead
// server cannot hold one call longer than that.
func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.connectTimeout+c.readTimeout)
}

// Poll fetches the next event for role. It never fails: transport errors and
// malformed bodies come back as a RemoteEvent with no event and a Status
// naming the failure class.
func (c *Client) Poll(ctx context.Context, role model.Role) model.RemoteEvent {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	u := c.base + "/api/poll?role=" + url.QueryEscape(string(model.NormalizeRole(string(role))))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failed(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("HTTP %d", resp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return failed(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.RemoteEvent{Status: status}
	}

	ev, err := DecodePoll(body)
	if err != nil {
		return failed(err)
	}
	ev.Status = status
	return ev
}

func failed(err error) model.RemoteEvent {
	return model.RemoteEvent{Status: "ERROR: " + ErrorClass(err)}
}

// Respond POSTs a classified response. A non-2xx status is an error.
func (c *Client) Respond(ctx context.Context, r model.Response) error {
	r.Role = model.NormalizeRole(string(r.Role))
	return c.postJSON(ctx, "/api/response", r, nil)
}

// Send enqueues an event on the coordinator, as the dashboard does.
func (c *Client) Send(ctx context.Context, sr model.SendRequest) (model.SendResponse, error) {
	var out model.SendResponse
	err := c.postJSON(ctx, "/api/send", sr, &out)
	return out, err
}

// Status reads the coordinator's dashboard state.
func (c *Client) Status(ctx context.Context) (model.StatusResponse, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	var out model.StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/status", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()
	if err := decodeReply(resp, &out); err != nil {
		return out, fmt.Errorf("get status: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := decodeReply(resp, out); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, strings.TrimSpace(e.Body))
}

func decodeReply(resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
