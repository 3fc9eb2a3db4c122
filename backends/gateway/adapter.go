// Package gateway implements backends.Filesystem by forwarding every
// operation to another diskfs gateway over its /v1 HTTP API. It lets one
// gateway front a drive that another instance owns.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metrics"
)

// Routes of the peer gateway
const (
	routeFiles       = "/v1/files/"
	routeDirectories = "/v1/directories/"
	routeMetadata    = "/v1/metadata/"
	routeVisibility  = "/v1/visibility/"
	routeMove        = "/v1/move"
	routeCopy        = "/v1/copy"
)

// Headers the peer sets on file and HEAD responses
const (
	headerType = "X-Diskfs-Type"
)

var _ backends.Filesystem = (*Adapter)(nil)

// RemoteError is a non-success answer from the peer gateway
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway responded with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is maps the peer's answers back onto the errors its engine started from
func (e *RemoteError) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.StatusCode == http.StatusNotFound
	case fs.ErrExist:
		return e.Code == "ALREADY_EXISTS"
	case fs.ErrPermission:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case fs.ErrInvalid:
		return e.StatusCode == http.StatusBadRequest
	case locks.ErrLocked:
		return e.Code == "RESOURCE_LOCKED"
	case backends.ErrVisibilityNotSupported:
		return e.Code == "NOT_SUPPORTED"
	case backends.ErrBackendNotEnabled:
		return e.Code == "BACKEND_NOT_ENABLED"
	}
	return false
}

func (e *RemoteError) transient() bool {
	return e.StatusCode == http.StatusBadGateway ||
		e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusGatewayTimeout
}

// Adapter implements backends.Filesystem against a peer gateway
type Adapter struct {
	client     *http.Client
	base       *url.URL
	apiKey     string
	attempts   uint
	normalizer pathutil.Normalizer
	logger     *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

// WithAttempts sets how often idempotent reads are tried
func WithAttempts(n uint) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.attempts = n
		}
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an adapter for the gateway at baseURL authenticating with apiKey
func New(baseURL, apiKey string, opts ...Option) (*Adapter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: scheme must be http or https", baseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	a := &Adapter{
		client:     http.DefaultClient,
		base:       base,
		apiKey:     apiKey,
		attempts:   3,
		normalizer: pathutil.NewWhitespaceNormalizer(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewFromConfig creates an adapter with its own transport
func NewFromConfig(cfg config.GatewayConfig, logger *zap.Logger) (*Adapter, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return New(cfg.URL, cfg.APIKey,
		WithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.Timeout}),
		WithLogger(logger))
}

// Close drops idle connections to the peer
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *Adapter) normalize(path string) (string, error) {
	return a.normalizer.NormalizePath(path)
}

// endpoint builds the URL of route followed by the normalized path p
func (a *Adapter) endpoint(route, p string, query url.Values) string {
	u := *a.base
	u.Path = a.base.Path + route + p
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends one request and turns non-2xx answers into a RemoteError. The
// caller owns the body of a successful response.
func (a *Adapter) do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	a.logger.Debug("Forwarding request to gateway",
		zap.String("method", method),
		zap.String("url", rawURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	remote := &RemoteError{StatusCode: resp.StatusCode}
	if method != http.MethodHead {
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			remote.Code = payload.Code
			remote.Message = payload.Message
		}
	}
	return nil, remote
}

// read performs an idempotent request, retrying transport failures and
// transient gateway answers
func (a *Adapter) read(ctx context.Context, method, rawURL string) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			var err error
			resp, err = a.do(ctx, method, rawURL, nil, nil)
			return err
		},
		retry.Attempts(a.attempts),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return remote.transient()
			}
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.RemoteRetriesTotal.WithLabelValues(method).Inc()
			a.logger.Debug("Retrying gateway request",
				zap.String("method", method),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
		retry.Context(ctx),
	)
	return resp, err
}

// getJSON reads rawURL and decodes the body into out
func (a *Adapter) getJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := a.read(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// sendJSON sends in as the JSON body and discards the answer
func (a *Adapter) sendJSON(ctx context.Context, method, rawURL string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := a.do(ctx, method, rawURL, bytes.NewReader(body), http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
