// Package twelvedata implements market.Provider on top of the Twelve Data
// time_series REST endpoint.
package twelvedata

import (
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

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultBaseURL          = "https://api.twelvedata.com"
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 2
	defaultRetryBackoffBase = 200 * time.Millisecond
	maxOutputSize           = 5000
)

// ErrAPI wraps error payloads returned with status "error".
var ErrAPI = errors.New("twelvedata: api error")

// Client wraps access to the Twelve Data REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets the apikey query parameter.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithRetryBackoff sets the first retry delay; later delays double.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewClient constructs a Twelve Data API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: newHTTPClient(defaultHTTPTimeout),
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TimeSeries fetches up to outputSize bars, newest first as returned by the API.
func (c *Client) TimeSeries(ctx context.Context, symbol, interval string, outputSize int) (*TimeSeriesResponse, error) {
	if outputSize <= 0 || outputSize > maxOutputSize {
		outputSize = maxOutputSize
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("outputsize", strconv.Itoa(outputSize))
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/time_series?%s", c.baseURL, q.Encode())

	var body TimeSeriesResponse
	if err := c.get(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	if strings.EqualFold(body.Status, "error") {
		return nil, fmt.Errorf("%w: %d %s", ErrAPI, body.Code, body.Message)
	}
	return &body, nil
}

func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("twelvedata: build request: %w", err)
		}
		retryable := true
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("twelvedata: read response: %w", readErr)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = fmt.Errorf("twelvedata: http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
				retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			default:
				if err := json.Unmarshal(body, result); err != nil {
					return fmt.Errorf("twelvedata: decode response: %w", err)
				}
				return nil
			}
		}
		if !retryable || attempt == c.maxRetries {
			break
		}
		logx.WithContext(ctx).Infof("twelvedata: retrying after attempt %d: %v", attempt+1, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return lastErr
}
