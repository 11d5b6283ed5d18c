// Package httpclient is the uniform HTTP surface used by every trigger part
// and trade-exchange connector: random user agent, 60s default timeout,
// 429-as-distinct-error, and jittered backoff on transient failures.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

// Output selects how the response body is returned to the caller.
type Output int

const (
	OutputJSON Output = iota
	OutputRaw
)

// DefaultTimeout is the per-request timeout unless overridden.
const DefaultTimeout = 60 * time.Second

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// TooManyRequests is returned when the vendor responds 429; RetryAfter is the
// parsed header value in seconds, 0 if absent.
type TooManyRequests struct {
	RetryAfter int
}

func (e *TooManyRequests) Error() string {
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfter)
}

// RequestError is the opaque-failure case: transport error, non-2xx status
// that isn't 429, or a body that failed to decode.
type RequestError struct {
	URL    string
	Status int
	Cause  error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("request error for %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("request error for %s: status %d", e.URL, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// Client is a shared, unauthenticated HTTP surface. It is not safe to share
// between exchanges that need different backoff state; construct one per
// owner.
type Client struct {
	http    *http.Client
	backoff *backoff.Backoff
	limiter *RateLimiter
}

// New builds a Client with the default timeout.
func New() *Client {
	return NewWithTimeout(DefaultTimeout)
}

// NewWithTimeout builds a Client with an overridden per-request timeout.
func NewWithTimeout(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		backoff: &backoff.Backoff{
			Min:    200 * time.Millisecond,
			Max:    3 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Get issues a GET, retrying transient (non-429) failures a bounded number
// of times via the backoff schedule before surfacing a RequestError.
func (c *Client) Get(ctx context.Context, rawURL string, output Output, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, output, headers, nil)
}

// Post issues a POST with an application/x-www-form-urlencoded body.
func (c *Client) Post(ctx context.Context, rawURL string, output Output, headers map[string]string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	return c.do(ctx, http.MethodPost, rawURL, output, headers, body)
}

// PostJSON issues a POST with a JSON-encoded body, for vendors (Huobi) whose
// order API rejects form-encoded bodies.
func (c *Client) PostJSON(ctx context.Context, rawURL string, output Output, headers map[string]string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode json body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	merged := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}
	return c.do(ctx, http.MethodPost, rawURL, output, merged, body)
}

func (c *Client) do(ctx context.Context, method, rawURL string, output Output, headers map[string]string, body io.Reader) ([]byte, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}

	const maxAttempts = 3
	c.backoff.Reset()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		data, err := c.attempt(ctx, method, rawURL, output, headers, body)
		if err == nil {
			return data, nil
		}
		if _, is429 := err.(*TooManyRequests); is429 {
			return nil, err
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			time.Sleep(c.backoff.Duration())
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, output Output, headers map[string]string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Cause: err}
	}
	req.Header.Set("User-Agent", randomUserAgent())
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return nil, &TooManyRequests{RetryAfter: retryAfter}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Status: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{URL: rawURL, Status: resp.StatusCode, Cause: fmt.Errorf("%s", string(data))}
	}

	if output == OutputRaw {
		return data, nil
	}
	if !json.Valid(data) {
		return nil, &RequestError{URL: rawURL, Status: resp.StatusCode, Cause: fmt.Errorf("response body is not valid JSON")}
	}
	return data, nil
}

// StripLeadingJunk returns the subslice starting at the first '{', used for
// feed responses that prepend non-JSON junk before the body.
func StripLeadingJunk(raw []byte) []byte {
	idx := strings.IndexByte(string(raw), '{')
	if idx < 0 {
		return raw
	}
	return raw[idx:]
}
