// Package httpclient wraps outbound HTTP with per-call timeouts and a
// bound on concurrent in-flight calls, so slow or hostile counterpart
// nodes cannot exhaust the handler pool.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// ConfirmTimeout is the extended deadline for handshake POSTs; key
// generation and clock skew on the remote side make the default too tight.
const ConfirmTimeout = 120 * time.Second

// Client is a bounded outbound HTTP client.
type Client struct {
	hc  *http.Client
	sem *semaphore.Weighted
}

// New constructs a client allowing at most maxInFlight concurrent calls.
func New(maxInFlight int64) *Client {
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	return &Client{
		hc:  &http.Client{},
		sem: semaphore.NewWeighted(maxInFlight),
	}
}

// Get fetches a URL body within the timeout.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, "", nil, timeout)
}

// PostForm posts url-encoded form values within the timeout.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, timeout time.Duration) ([]byte, error) {
	body := form.Encode()
	return c.do(ctx, http.MethodPost, rawURL, "application/x-www-form-urlencoded", strings.NewReader(body), timeout)
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader, timeout time.Duration) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, errs.ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http %s %s: status %d", method, rawURL, resp.StatusCode)
	}
	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return out, nil
}
