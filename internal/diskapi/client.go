// Package diskapi is an HTTP client for the remote drive REST API.
// It owns authentication, transport tuning, rate limiting, retries and the
// polling of asynchronous operations.
package diskapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metrics"
)

const maxErrorBodySize = 64 << 10

// Client talks to the drive API. It is safe for concurrent use.
type Client struct {
	httpClient       *http.Client // bounded API calls
	streamClient     *http.Client // uploads and downloads, no overall timeout
	baseURL          string
	token            string
	pathPrefix       string
	pageSize         int
	maxRetries       uint
	retryDelay       time.Duration
	pollInterval     time.Duration
	operationTimeout time.Duration
	permanentDelete  bool
	limiter          *rate.Limiter
	logger           *zap.Logger
}

// NewClient creates a new drive API client
func NewClient(cfg config.DiskConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("disk token is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("disk base URL is required")
	}

	// Configure HTTP transport with optional TLS skip verification
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	pollInterval := cfg.OperationPollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	operationTimeout := cfg.OperationTimeout
	if operationTimeout <= 0 {
		operationTimeout = 5 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		token:            cfg.Token,
		pathPrefix:       cfg.PathPrefix,
		pageSize:         pageSize,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       cfg.RetryDelay,
		pollInterval:     pollInterval,
		operationTimeout: operationTimeout,
		permanentDelete:  cfg.PermanentDelete,
		limiter:          limiter,
		logger:           logger,
	}, nil
}

// PathPrefix returns the prefix the API puts in front of resource paths
func (c *Client) PathPrefix() string {
	return c.pathPrefix
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// apiPath converts a normalized path into the form expected by the API. A
// name that happens to start with the prefix is still a name.
func (c *Client) apiPath(p string) string {
	return "/" + strings.TrimPrefix(p, "/")
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

// doJSON sends an API request and decodes the JSON response into out.
// GET requests are retried on transport failures and 5xx responses; every
// request is retried on 429.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, out any) (int, error) {
	idempotent := method == http.MethodGet || method == http.MethodHead

	attempts := c.maxRetries + 1
	var status int
	err := retry.Do(
		func() error {
			var err error
			status, err = c.roundTrip(ctx, method, rawURL, out)
			return err
		},
		retry.Attempts(attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return isRetryable(err, idempotent)
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.RemoteRetriesTotal.WithLabelValues(method).Inc()
			c.logger.Debug("Retrying disk API request",
				zap.String("method", method),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
		retry.Context(ctx),
	)
	return status, err
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "OAuth "+c.token)

	resp, err := c.send(c.httpClient, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeAPIError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", method, err)
		}
	}

	return resp.StatusCode, nil
}

// send waits for the rate limiter and executes req, recording metrics
func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start)
	metrics.RemoteRequestDuration.WithLabelValues(req.Method).Observe(duration.Seconds())

	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: err}
	}

	metrics.RemoteRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("Disk API request",
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("endpoint", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))

	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	apiErr.Code = body.Error
	apiErr.Message = body.Message
	apiErr.Description = body.Description
	return apiErr
}

// fieldParam builds the "fields" query value. Entries may themselves hold
// comma separated lists. extra fields are appended when a selection is made;
// an empty selection requests every field.
func fieldParam(fields []string, extra ...string) string {
	var selected []string
	seen := make(map[string]bool)
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		selected = append(selected, f)
	}

	for _, entry := range fields {
		for _, f := range strings.Split(entry, ",") {
			add(f)
		}
	}
	if len(selected) == 0 {
		return ""
	}
	for _, f := range extra {
		add(f)
	}
	return strings.Join(selected, ",")
}
