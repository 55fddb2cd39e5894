// Package remote implements core.Driver and core.OCR against a device agent
// speaking a small JSON-over-HTTP protocol.
//
// Every response is an envelope {"value": ...}. Failures carry
// {"value": {"error": "<code>", "message": "<text>"}}.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
)

// DefaultTimeout bounds a single agent call.
const DefaultTimeout = 30 * time.Second

// Agent error codes mapped onto error categories.
const (
	codeWaitTimeout = "wait timeout"
	codeNotFound    = "no such element"
)

// Options configures the client.
type Options struct {
	// Rate is the maximum calls per second. 0 = unlimited.
	Rate    float64
	Burst   int
	Timeout time.Duration
}

// Client handles HTTP communication with the device agent.
type Client struct {
	serverURL string
	http      *resty.Client
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewClient creates a new agent client.
func NewClient(serverURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	serverURL = strings.TrimSuffix(serverURL, "/")
	return &Client{
		serverURL: serverURL,
		http: resty.New().
			SetBaseURL(serverURL).
			SetHeader("Accept", "application/json"),
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

// ServerURL returns the agent base URL.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	return c.request(ctx, c.timeout, "GET", path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (gjson.Result, error) {
	return c.request(ctx, c.timeout, "POST", path, body)
}

// postWithin is post with a call timeout other than the client's.
func (c *Client) postWithin(ctx context.Context, timeout time.Duration, path string, body interface{}) (gjson.Result, error) {
	return c.request(ctx, timeout, "POST", path, body)
}

func (c *Client) request(ctx context.Context, timeout time.Duration, method, path string, body interface{}) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := c.http.R().SetContext(ctx)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return gjson.Result{}, transportError(ctx, path, err)
	}

	raw := resp.Body()
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: invalid response (HTTP %d): %s", path, resp.StatusCode(), truncate(string(raw), 200))
	}
	value := gjson.GetBytes(raw, "value")

	if code := value.Get("error"); code.Exists() {
		return gjson.Result{}, agentError(path, code.String(), value.Get("message").String())
	}
	if resp.IsError() {
		return gjson.Result{}, fmt.Errorf("%s: HTTP %d", path, resp.StatusCode())
	}
	return value, nil
}

// transportError maps a failed round trip onto a timeout or connection error.
func transportError(ctx context.Context, path string, err error) error {
	if errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.ErrTimeout.WithMessagef("%s: agent call timed out", path).WithCause(err)
	}
	return core.ErrServerUnreachable.WithMessagef("%s: %v", path, err).WithCause(err)
}

func agentError(path, code, message string) error {
	msg := fmt.Sprintf("%s: %s", path, code)
	if message != "" {
		msg += ": " + message
	}
	switch code {
	case codeWaitTimeout:
		return core.ErrWaitTimeout.WithMessage(msg)
	case codeNotFound:
		return core.ErrElementNotFound.WithMessage(msg)
	default:
		return fmt.Errorf("%s", msg)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
