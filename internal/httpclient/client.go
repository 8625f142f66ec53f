// Package httpclient executes logical HTTP calls against the rewards platform
// with bounded retries, browser-like default headers and error classification.
// A logical call fails only after its Backoff runs out of attempts, or
// immediately when the platform rejects the request outright.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/pkg/logger"
)

// Request describes one logical call. Body may be nil, []byte, or any value
// that encodes to JSON. Endpoint labels metrics; it defaults to the URL path.
type Request struct {
	Method   string
	URL      string
	Endpoint string
	Header   map[string]string
	Body     any
}

// Recorder receives per-attempt observations.
type Recorder interface {
	ObserveAttempt(endpoint, method string, status int, duration time.Duration)
	ObserveExhausted(endpoint, method string)
}

// Config describes the client's fixed behaviour.
type Config struct {
	DefaultHeaders map[string]string
	Backoff        Backoff
	Timeout        time.Duration
	// RetryClientErrors retries 4xx rejections like transient faults.
	RetryClientErrors bool
}

// Client is safe for concurrent use.
type Client struct {
	headers           http.Header
	backoff           Backoff
	timeout           time.Duration
	retryClientErrors bool
	transport         http.RoundTripper
	sleep             Sleeper
	logger            *slog.Logger
	recorder          Recorder
}

// Option customises a Client.
type Option func(*Client)

// WithSleeper replaces the inter-attempt wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithTransport sets the transport used when Execute receives nil.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// New builds a client.
func New(cfg Config, opts ...Option) *Client {
	headers := make(http.Header, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		headers.Set(k, v)
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultBackoff
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		headers:           headers,
		backoff:           backoff,
		timeout:           timeout,
		retryClientErrors: cfg.RetryClientErrors,
		transport:         http.DefaultTransport,
		sleep:             SleepContext,
		logger:            logger.Named("httpclient"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// DefaultHeaders returns the header set that mimics a dashboard browser tab.
func DefaultHeaders(origin, referer, userAgent string) map[string]string {
	return map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Encoding": "gzip, deflate, zstd",
		"Accept-Language": "en-US,en;q=0.9",
		"Content-Type":    "application/json",
		"Origin":          origin,
		"Referer":         referer,
		"User-Agent":      userAgent,
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
		"Priority":        "u=1, i",
	}
}

// Execute performs req through transport (nil selects the client default).
// Transport errors, 5xx, 408, 429 and captcha rejections are retried per the
// Backoff; exhausting it yields NETWORK_ERROR wrapping the last failure. Other
// 4xx responses yield API_ERROR immediately unless RetryClientErrors is set.
func (c *Client) Execute(ctx context.Context, req Request, transport http.RoundTripper) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Endpoint == "" {
		req.Endpoint = endpointOf(req.URL)
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "encode request body")
	}
	if transport == nil {
		transport = c.transport
	}

	maxAttempts := c.backoff.MaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err, req)
		}

		resp, err := c.attempt(ctx, req, body, transport)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(ctxErr, req)
		}
		lastErr = err

		retry := c.shouldRetry(err)
		c.logFailure(req, attempt, maxAttempts, err, retry)
		if !retry {
			return nil, rejected(err, req)
		}
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff.Delay(attempt)); err != nil {
			return nil, canceled(err, req)
		}
	}

	if c.recorder != nil {
		c.recorder.ObserveExhausted(req.Endpoint, req.Method)
	}
	return nil, xerrors.Wrap(xerrors.CodeNetwork, lastErr,
		fmt.Sprintf("%s %s failed after %d attempts", req.Method, req.Endpoint, maxAttempts),
		xerrors.WithMetadata("url", req.URL),
		xerrors.WithMetadata("attempts", strconv.Itoa(maxAttempts)))
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte, transport http.RoundTripper) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range c.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}

	client := &http.Client{Transport: transport, Timeout: c.timeout}
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		c.observe(req, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	c.observe(req, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, data)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) shouldRetry(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return true
	}
	switch {
	case statusErr.CaptchaRequired():
		return true
	case statusErr.StatusCode >= 500,
		statusErr.StatusCode == http.StatusRequestTimeout,
		statusErr.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return c.retryClientErrors
	}
}

func (c *Client) logFailure(req Request, attempt, maxAttempts int, err error, retry bool) {
	attrs := []any{
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.String("method", req.Method),
		slog.String("endpoint", req.Endpoint),
		slog.Any("error", err),
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs, slog.Int("status", statusErr.StatusCode))
		if statusErr.CaptchaRequired() {
			c.logger.Warn("captcha required, retrying", attrs...)
			return
		}
	}
	switch {
	case !retry:
		c.logger.Warn("request rejected", attrs...)
	case attempt < maxAttempts:
		c.logger.Warn("request attempt failed, retrying", attrs...)
	default:
		c.logger.Warn("request attempt failed, no attempts left", attrs...)
	}
}

func (c *Client) observe(req Request, status int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveAttempt(req.Endpoint, req.Method, status, d)
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func endpointOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}

func canceled(err error, req Request) error {
	return xerrors.Wrap(xerrors.CodeCanceled, err, fmt.Sprintf("%s %s canceled", req.Method, req.Endpoint))
}

func rejected(err error, req Request) error {
	opts := []xerrors.Option{xerrors.WithMetadata("url", req.URL)}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		opts = append(opts, xerrors.WithMetadata("status", strconv.Itoa(statusErr.StatusCode)))
	}
	return xerrors.Wrap(xerrors.CodeAPI, err, fmt.Sprintf("%s %s rejected", req.Method, req.Endpoint), opts...)
}
