// Package client provides the OSF HTTP client: a rate-limited fetcher that
// resubmits throttled requests after a fixed cooldown, with optional
// request pacing and Redis-backed response caching.
package client

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

	"github.com/Sternrassler/osf-archiver/pkg/cache"
	"github.com/Sternrassler/osf-archiver/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public OSF API root.
const DefaultBaseURL = "https://api.osf.io/"

// maxErrorBody bounds how much of an error response is kept as message.
const maxErrorBody = 512

// Prometheus metrics for OSF client operations.
var (
	osfRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osf_requests_total",
		Help: "Total OSF API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	osfRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "osf_request_duration_seconds",
		Help:    "OSF request duration in seconds by endpoint, cooldowns included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 60, 300},
	}, []string{"endpoint"})

	osfErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osf_errors_total",
		Help: "Total terminal OSF errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root relative references are resolved against.
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Token is an optional OSF personal access token sent as Bearer.
	Token string

	// Retry is the policy applied to every request.
	Retry ratelimit.Policy

	// RequestsPerSecond enables client-side pacing when > 0.
	RequestsPerSecond float64
	Burst             int

	// ResponseHeaderTimeout bounds the wait for one attempt's response
	// headers. Reading the body is never bounded, so large downloads can
	// take as long as they need. Zero means no limit.
	ResponseHeaderTimeout time.Duration

	// Redis enables the response cache when set.
	Redis *redis.Client

	// CacheRetention keeps revalidatable entries past their expiry.
	CacheRetention time.Duration
}

// DefaultConfig returns the default configuration: public API, unbounded
// retries with a 60s cooldown, no timeouts, no pacing and no cache.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      "osf-archiver/1.0",
		Retry:          ratelimit.DefaultPolicy(),
		Burst:          1,
		CacheRetention: 24 * time.Hour,
	}
}

// Client is the OSF API client.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	pacer      *ratelimit.Pacer
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
	sleep      sleepFunc
}

// New creates a new OSF client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	logger := log.With().Str("component", "osf-client").Logger()

	c := &Client{
		httpClient: newHTTPClient(cfg.ResponseHeaderTimeout),
		pacer:      ratelimit.NewPacer(cfg.RequestsPerSecond, cfg.Burst, logger),
		baseURL:    base,
		config:     cfg,
		logger:     logger,
		sleep:      sleepContext,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// newHTTPClient returns a client without an overall timeout; only the
// header wait is bounded when headerTimeout > 0.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// BaseURL returns the API root with a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Resolve turns a reference relative to the API root into an absolute URL.
// Absolute references are returned unchanged.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery}).String(), nil
}

// Do performs an HTTP request through the rate-limited fetcher.
//
// Responses with a retryable status are discarded and the request is
// resubmitted after the policy's cooldown. Any other response, 4xx
// included, is returned to the caller unclassified. GET responses are
// served from and stored in the cache when one is configured.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, c.cache != nil && req.Method == http.MethodGet)
}

func (c *Client) do(req *http.Request, useCache bool) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)
	target := req.URL.String()

	startTime := time.Now()
	defer func() {
		osfRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if useCache {
		cacheKey = cache.CacheKey{
			Path:        req.URL.Path,
			QueryParams: req.URL.Query(),
			Scope:       cache.ScopeForToken(c.config.Token),
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", target).Msg("Cache get error")
		}
		if entry != nil && !entry.IsExpired() {
			c.logger.Debug().Str("url", target).Msg("Serving response from cache")
			osfRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return cache.EntryToResponse(entry, req), nil
		}
		if entry.Revalidatable() {
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			cachedEntry = entry
			c.logger.Debug().
				Str("url", target).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	c.logger.Debug().
		Str("url", target).
		Str("method", req.Method).
		Msg("Executing OSF request")

	resp, err := retryOnStatus(ctx, c.config.Retry, c.logger, c.sleep, target, func(ctx context.Context) (*http.Response, error) {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		attempt, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(attempt)
		if err != nil {
			osfErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			osfRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(err).Str("url", target).Msg("HTTP request failed")
			return nil, &APIError{ErrorClass: ErrorClassNetwork, URL: target, Err: err}
		}

		osfRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.ErrorClass != ErrorClassNetwork {
			osfErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		}
		return nil, err
	}

	if !useCache {
		return resp, nil
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("url", target).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		newExpires := cache.ExpiresFromHeaders(resp.Header)
		if err := c.cache.Refresh(ctx, cacheKey, newExpires, c.config.CacheRetention); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, URL: target, Err: err}
		}
		if err := c.cache.Set(ctx, cacheKey, entry, c.config.CacheRetention); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// cloneRequest builds one attempt of req. Requests with a body must be
// replayable through GetBody.
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return attempt, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s cannot be replayed", req.URL)
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("reset request body: %w", err)
	}
	attempt.Body = body
	return attempt, nil
}

// Get performs a GET request. ref is resolved against the base URL.
func (c *Client) Get(ctx context.Context, ref string) (*http.Response, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Stream performs an uncached GET and fails on any non-2xx final status.
// The caller must close the body. It is meant for large downloads.
func (c *Client) Stream(ctx context.Context, ref string) (*http.Response, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req, false)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetBytes fetches ref and returns the body. Any non-2xx final status is a
// terminal *APIError.
func (c *Client) GetBytes(ctx context.Context, ref string) ([]byte, error) {
	resp, err := c.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, URL: requestURL(resp), Err: err}
	}
	return body, nil
}

// GetJSON fetches ref and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, ref string, v any) error {
	body, err := c.GetBytes(ctx, ref)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrDecode, ref, err)
	}
	return nil
}

// checkStatus converts a non-2xx response into an *APIError and closes
// its body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	class := ClassifyStatus(resp.StatusCode)
	osfErrorsTotal.WithLabelValues(string(class)).Inc()

	message := strings.TrimSpace(string(msg))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    message,
		URL:        requestURL(resp),
	}
}

func requestURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.String()
}

// endpointLabel reduces a request path to a low-cardinality metric label
// by replacing identifier segments, e.g. /v2/registrations/fxehm/wikis/
// becomes /v2/registrations/{id}/wikis/.
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if i > 0 && isResourceKind(segments[i-1]) && seg != "" {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isResourceKind(seg string) bool {
	switch seg {
	case "registrations", "nodes", "wikis", "resources", "files", "users":
		return true
	}
	return false
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
