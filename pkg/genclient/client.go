// Package genclient is the HTTP client for the reply generation service.
// The delivery pipeline bounds each call with its own timeout; this client
// only translates the wire format.
package genclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"cadence/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client calls the generation endpoint. It implements the delivery
// pipeline's Generator interface.
type Client struct {
	base   string
	hc     *fasthttp.Client
	apiKey string
}

// New returns a Client for the generation service at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		hc:     &fasthttp.Client{},
		apiKey: apiKey,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Reply   string `json:"reply"`
	Emotion string `json:"emotion,omitempty"`
}

// Generate requests a companion reply for prompt. Context deadlines are
// honored; on expiry the context error is returned so callers can
// distinguish timeout from hard failure.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod("POST")
	req.SetRequestURI(c.base + "/v1/generate")
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	req.SetBody(body)

	deadline := time.Now().Add(defaultTimeout)
	fromCtx := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		fromCtx = true
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// The transport can time out just before the context does; when the
		// deadline came from the context, report it as the context expiring.
		if fromCtx && errors.Is(err, fasthttp.ErrTimeout) {
			return "", context.DeadlineExceeded
		}
		return "", fmt.Errorf("generate: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return "", fmt.Errorf("generate: status %d", code)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if out.Reply == "" {
		return "", fmt.Errorf("generate: empty reply")
	}
	logger.Debug("reply_generated", "chars", len(out.Reply), "emotion", out.Emotion)
	return out.Reply, nil
}
