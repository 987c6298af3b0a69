package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Common errors. StatusError unwraps to one of these where applicable.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout bounds a single attempt, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// RateLimit caps requests per second across all callers.
	// Zero disables limiting.
	RateLimit float64

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             30 * time.Second,
		UserAgent:           "offliner",
	}
}

// NetworkError is a connection failure or attempt timeout.
type NetworkError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("http: GET %s: attempt timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("http: GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: GET %s: %s", e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return checkStatusCode(e.StatusCode)
}

// Response is an open response body. Close releases the attempt's resources.
type Response struct {
	Body          io.ReadCloser
	ContentLength int64

	cancel context.CancelFunc
}

// Close closes the body and ends the attempt.
func (r *Response) Close() error {
	err := r.Body.Close()
	r.cancel()
	return err
}

// Client performs single GET attempts. Retrying is left to the caller.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // checksums are computed over the raw bytes
	}

	c := &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Get performs one GET attempt. The attempt timeout covers reading the
// returned body, so callers must Close the response.
//
// Errors are *NetworkError, *StatusError, or the context's error when ctx
// itself was cancelled.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &NetworkError{URL: url, Err: err}
		}
	}

	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if c.opts.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, c.classify(ctx, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return &Response{
		Body:          &attemptBody{ReadCloser: resp.Body, client: c, ctx: ctx, url: url},
		ContentLength: resp.ContentLength,
		cancel:        cancel,
	}, nil
}

// Fetch performs one GET attempt and reads the whole body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CloseIdleConnections closes connections kept alive for reuse.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// classify maps transport errors onto NetworkError unless the caller's own
// context ended.
func (c *Client) classify(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &NetworkError{
		URL:     url,
		Timeout: errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
		Err:     err,
	}
}

// attemptBody classifies read errors the same way as request errors.
type attemptBody struct {
	io.ReadCloser
	client *Client
	ctx    context.Context
	url    string
}

func (b *attemptBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = b.client.classify(b.ctx, b.url, err)
	}
	return n, err
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return nil
	}
}
