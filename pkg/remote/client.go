// Package remote provides HTTP adapters for the backend message and
// conversation collections. The backend is the source of truth; these
// adapters are thin JSON clients with no retry policy of their own, since
// offline handling belongs to the delivery pipeline.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a single request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// Client is a shared JSON-over-HTTP transport for the backend API.
type Client struct {
	base    string
	hc      *fasthttp.Client
	timeout time.Duration
	apiKey  string
}

// NewClient returns a Client for the given base URL. apiKey may be empty.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		hc:      &fasthttp.Client{},
		timeout: timeout,
		apiKey:  apiKey,
	}
}

// doJSON performs one request. in is marshalled as the body when non-nil;
// a 2xx body is unmarshalled into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.timeout)
	fromCtx := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		fromCtx = true
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fromCtx && errors.Is(err, fasthttp.ErrTimeout) {
			return context.DeadlineExceeded
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return fmt.Errorf("%s %s: status %d", method, path, code)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
