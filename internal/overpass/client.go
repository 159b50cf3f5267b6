package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the public Overpass API instance.
const DefaultEndpoint = "https://overpass-api.de/api"

// Common errors.
var (
	// ErrRateLimitExceeded is returned when the server rejects a query for
	// capacity reasons (429 Too Many Requests or 504 Gateway Timeout).
	ErrRateLimitExceeded = errors.New("overpass: rate limit exceeded")
	// ErrMalformedResponse is returned when the body is not the expected JSON.
	ErrMalformedResponse = errors.New("overpass: malformed response")
)

// TransportError is a failed exchange with the server: a connection error
// or an unexpected status code.
type TransportError struct {
	Op         string // "interpreter" or "status"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("overpass: %s: unexpected status code %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("overpass: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options configures the client.
type Options struct {
	// Endpoint is the API base URL, without the trailing /interpreter.
	// Default: https://overpass-api.de/api
	Endpoint string

	// UserAgent is sent with every request.
	UserAgent string

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int

	// RetryAttempts is the number of extra attempts after a connection
	// error. Status codes are never retried here.
	// Default: 2
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 10s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options for the public endpoint.
func DefaultOptions() Options {
	return Options{
		Endpoint:            DefaultEndpoint,
		UserAgent:           "osmutils",
		MaxIdleConnsPerHost: 4,
		RetryAttempts:       2,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     10 * time.Second,
	}
}

// Client talks to an Overpass API endpoint. Request deadlines come from the
// context; the client itself has no timeout.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a client with the given options.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// Endpoint returns the base URL the client talks to.
func (c *Client) Endpoint() string {
	return c.opts.Endpoint
}

// Interpreter runs query and decodes the JSON answer.
//
// A 429 or 504 response returns an error wrapping ErrRateLimitExceeded. A
// body that is not a JSON object returns ErrMalformedResponse. Everything
// else that goes wrong is a *TransportError.
func (c *Client) Interpreter(ctx context.Context, query string) (*Response, error) {
	form := url.Values{"data": {query}}.Encode()

	resp, err := c.do(ctx, "interpreter", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint+"/interpreter", strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode("interpreter", resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "interpreter", Err: err}
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

// Status fetches the plain-text status page.
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "status", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Endpoint+"/status", nil)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatusCode("status", resp.StatusCode); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "status", Err: err}
	}
	return string(body), nil
}

// do sends the request built by newReq, retrying connection errors.
func (c *Client) do(ctx context.Context, op string, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, &TransportError{Op: op, Err: err}
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return resp, nil
	}

	return nil, &TransportError{Op: op, Err: lastErr}
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func checkStatusCode(op string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrRateLimitExceeded, code)
	default:
		return &TransportError{Op: op, StatusCode: code}
	}
}
