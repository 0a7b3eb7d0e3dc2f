// Package platform holds the REST plumbing shared by every prediction-market
// adapter: request building, status mapping, upstream rate limiting and the
// client-side query filter used by platforms without a search endpoint.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const (
	// DefaultTimeout bounds a single upstream request when none is configured.
	DefaultTimeout = 15 * time.Second
	// DefaultSearchLimit caps the number of markets an adapter returns per search.
	DefaultSearchLimit = 10

	maxErrorBody = 512
	userAgent    = "predictmarket/1.0"
)

// Signer adds authentication headers to an outgoing request.
type Signer func(req *http.Request) error

// Config holds the settings shared by all adapters.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	SearchLimit int

	// Limiter throttles outgoing requests per platform when set. RateLimit
	// requests are allowed per RateWindow.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration

	Logger *slog.Logger
}

// Client is a small JSON-over-HTTP client bound to one platform.
type Client struct {
	platform   domain.Platform
	baseURL    string
	httpClient *http.Client
	signer     Signer

	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration

	logger *slog.Logger
}

// NewClient creates a Client for platform. A zero Timeout uses DefaultTimeout.
func NewClient(platform domain.Platform, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Second
	}
	return &Client{
		platform:   platform,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    cfg.Limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: window,
		logger:     logger.With(slog.String("platform", string(platform))),
	}
}

// SetSigner installs a request signer applied to every request.
func (c *Client) SetSigner(s Signer) { c.signer = s }

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON sends a GET request to baseURL+path with the given query parameters
// and decodes the JSON response body into out. Non-2xx statuses and transport
// or decode failures are returned as wrapped domain errors.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.signer != nil {
		if err := c.signer(req); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}

	if err := CheckHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
	}
	return nil
}

// throttle waits on the shared limiter. A limiter backend failure is logged
// and the request proceeds unthrottled; only cancellation aborts.
func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil || c.rateLimit <= 0 {
		return nil
	}
	err := c.limiter.Wait(ctx, "upstream:"+string(c.platform), c.rateLimit, c.rateWindow)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, ctxErr)
	}
	c.logger.WarnContext(ctx, "upstream rate limiter unavailable", slog.String("error", err.Error()))
	return nil
}

// CheckHTTPStatus maps non-2xx HTTP status codes to domain errors.
func CheckHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	if len(bodyStr) > maxErrorBody {
		bodyStr = bodyStr[:maxErrorBody]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	}
}

// MatchesQuery reports whether every significant term of query appears in at
// least one of texts, ignoring case. It backs search on platforms whose APIs
// only offer a full listing. An empty query matches everything.
func MatchesQuery(query string, texts ...string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(strings.Join(texts, " "))
	for _, term := range terms {
		term = strings.Trim(term, `?!.,;:"'()`)
		if term == "" {
			continue
		}
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// Truncate returns at most limit markets. A non-positive limit keeps all.
func Truncate(markets []domain.Market, limit int) []domain.Market {
	if limit > 0 && len(markets) > limit {
		return markets[:limit]
	}
	return markets
}
