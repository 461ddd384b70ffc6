// Package openalex provides a resilient client for the OpenAlex catalog API.
//
// The client owns rate-limit compliance, retry with linear backoff on
// transient failures and 5xx responses, and Retry-After-driven backoff on
// 429 responses. Every failure is converted to a typed domain error at this
// boundary; callers treat failures as zero results, never as a crash.
package openalex

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

	"github.com/scholarmatch/discovery-service/internal/domain"
	"github.com/scholarmatch/discovery-service/internal/observability"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default sustained requests per second.
	// The polite pool (with a contact email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultMaxRetries is the default retry budget per call.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for linear backoff.
	DefaultRetryDelay = time.Second

	// MaxPerPage is the upstream hard cap on page size.
	MaxPerPage = 200

	// sourceName identifies this upstream in errors and logs.
	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Email is the contact identity required by the upstream courtesy
	// policy. It is attached to every request as the mailto parameter
	// and embedded in the User-Agent.
	Email string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the sustained requests per second.
	RateLimit float64

	// BurstSize is the maximum request burst.
	BurstSize int

	// MaxRetries is the retry budget for transient failures, 5xx and 429.
	MaxRetries int

	// RetryDelay is the base delay: retry n waits RetryDelay*n, and a 429
	// without a Retry-After header waits RetryDelay*2.
	RetryDelay time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// SearchFilters narrows a works search. The zero value applies no filters
// beyond the query itself.
type SearchFilters struct {
	// FromYear and ToYear bound the publication year (inclusive).
	// Zero means unbounded on that side.
	FromYear int
	ToYear   int

	// MinCitations filters works below this citation count. Zero disables it.
	MinCitations int

	// Page is the 1-indexed page number. Zero means page 1.
	Page int

	// PerPage is the page size, capped at MaxPerPage.
	PerPage int

	// Sort is the upstream sort expression, e.g. "cited_by_count:desc".
	Sort string
}

// Client issues paginated, filtered works queries against OpenAlex.
// Retry counters and backoff timers are local to each call; the only
// shared state is the rate limiter, which is goroutine-safe.
type Client struct {
	config  Config
	http    *http.Client
	limiter *RateLimiter
	metrics *observability.Metrics

	// sleep is the suspension primitive used between retries; injectable
	// so tests can observe exact backoff durations.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		sleep:   sleepContext,
	}
}

// NewWithMetrics creates a client that reports request, retry and rate-limit
// counters. metrics may be nil, which disables reporting.
func NewWithMetrics(cfg Config, metrics *observability.Metrics) *Client {
	c := New(cfg)
	c.metrics = metrics
	return c
}

func (c *Client) observeRequest(class string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequests.WithLabelValues(class).Inc()
}

func (c *Client) observeRetry() {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRetries.Inc()
}

func (c *Client) observeRateLimited() {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRateLimited.Inc()
}

// sleepContext waits for the given duration, respecting cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SearchWorks queries OpenAlex for works matching the query and filters.
// Pages must be requested in increasing order by the caller; upstream sort
// order is only meaningful cumulatively.
func (c *Client) SearchWorks(ctx context.Context, query string, filters SearchFilters) (*WorksPage, error) {
	searchURL, err := c.buildSearchURL(query, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	body, err := c.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var resp worksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.MalformedResponseError{Source: sourceName, Cause: err}
	}

	works := make([]domain.Work, 0, len(resp.Results))
	for i := range resp.Results {
		works = append(works, resp.Results[i].toWork())
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	perPage := effectivePerPage(filters.PerPage)
	seen := (page-1)*perPage + len(works)

	return &WorksPage{
		Works:        works,
		TotalResults: resp.Meta.Count,
		HasMore:      len(works) > 0 && seen < resp.Meta.Count,
	}, nil
}

// get executes the request with rate limiting, retry and backoff, returning
// the body of a 200 response.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent())
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.observeRequest("network")
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if attempt >= c.config.MaxRetries {
				return nil, domain.NewExternalAPIError(sourceName, 0, err.Error(), domain.ErrTransient)
			}
			// Linear backoff on transient network failures.
			c.observeRetry()
			if err := c.sleep(ctx, c.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return nil, err
			}
			continue
		}
		c.observeRequest(statusClass(resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			resp.Body.Close()
			if err != nil {
				return nil, domain.NewExternalAPIError(sourceName, 0, err.Error(), domain.ErrTransient)
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			c.observeRateLimited()
			delay := c.retryAfter(resp)
			drainAndClose(resp)
			if attempt >= c.config.MaxRetries {
				return nil, &domain.RateLimitError{Source: sourceName, RetryAfter: delay}
			}
			// The server-specified delay replaces linear backoff for 429s.
			c.observeRetry()
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			message := readErrorMessage(resp)
			if attempt >= c.config.MaxRetries {
				return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
			}
			c.observeRetry()
			if err := c.sleep(ctx, c.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return nil, err
			}
			continue

		default:
			// Unrecoverable 4xx: surface immediately, no retry.
			message := readErrorMessage(resp)
			return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
		}
	}
}

// retryAfter reads the upstream Retry-After header in seconds or HTTP-date
// form, falling back to twice the base delay.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return c.config.RetryDelay * 2
	}
	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return c.config.RetryDelay * 2
}

// readErrorMessage extracts a human-readable message from an error response.
func readErrorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// drainAndClose discards the remaining body so the connection can be reused.
func drainAndClose(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
	}
}

// userAgent identifies this service and its contact email per the upstream
// courtesy policy.
func (c *Client) userAgent() string {
	return "ScholarMatch-DiscoveryService/1.0 (mailto:" + c.config.Email + ")"
}

// buildSearchURL constructs the /works search URL with query parameters.
func (c *Client) buildSearchURL(query string, filters SearchFilters) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	values := url.Values{}
	if query != "" {
		values.Set("search", query)
	}

	if clauses := buildFilterClauses(filters); len(clauses) > 0 {
		values.Set("filter", strings.Join(clauses, ","))
	}

	values.Set("per-page", strconv.Itoa(effectivePerPage(filters.PerPage)))

	page := filters.Page
	if page < 1 {
		page = 1
	}
	values.Set("page", strconv.Itoa(page))

	if filters.Sort != "" {
		values.Set("sort", filters.Sort)
	}

	// The mailto parameter is the mandatory courtesy identity token.
	values.Set("mailto", c.config.Email)

	baseURL.RawQuery = values.Encode()
	return baseURL.String(), nil
}

// buildFilterClauses assembles the comma-joined filter predicates.
func buildFilterClauses(filters SearchFilters) []string {
	var clauses []string

	if filters.FromYear > 0 || filters.ToYear > 0 {
		from, to := "", ""
		if filters.FromYear > 0 {
			from = strconv.Itoa(filters.FromYear)
		}
		if filters.ToYear > 0 {
			to = strconv.Itoa(filters.ToYear)
		}
		clauses = append(clauses, fmt.Sprintf("publication_year:%s-%s", from, to))
	}

	if filters.MinCitations > 0 {
		clauses = append(clauses, fmt.Sprintf("cited_by_count:>%d", filters.MinCitations-1))
	}

	return clauses
}

// statusClass buckets a status code for the request counter label.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	}
	return "other"
}

// effectivePerPage clamps the requested page size to the upstream cap.
func effectivePerPage(perPage int) int {
	if perPage <= 0 {
		return 25
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}
