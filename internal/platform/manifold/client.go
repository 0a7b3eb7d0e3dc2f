// Package manifold adapts the Manifold Markets public API.
package manifold

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

// DefaultBaseURL is the public Manifold API root.
const DefaultBaseURL = "https://api.manifold.markets"

const siteURL = "https://manifold.markets"

// Client implements domain.PlatformAdapter for Manifold.
type Client struct {
	rest  *platform.Client
	limit int
	now   func() time.Time
}

// NewClient creates a Manifold adapter.
func NewClient(cfg platform.Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = platform.DefaultSearchLimit
	}
	return &Client{
		rest:  platform.NewClient(domain.PlatformManifold, cfg),
		limit: limit,
		now:   time.Now,
	}
}

func (c *Client) Platform() domain.Platform { return domain.PlatformManifold }

// SearchMarkets uses Manifold's full-text search and drops resolved or
// already closed markets.
func (c *Client) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("term", query)
	params.Set("limit", strconv.Itoa(c.limit))

	var raw []apiMarket
	if err := c.rest.GetJSON(ctx, "/v0/search-markets", params, &raw); err != nil {
		return nil, fmt.Errorf("manifold: search: %w", err)
	}

	nowMs := c.now().UnixMilli()
	markets := make([]domain.Market, 0, len(raw))
	for i := range raw {
		m := &raw[i]
		if m.IsResolved || (m.CloseTime != nil && *m.CloseTime <= nowMs) {
			continue
		}
		markets = append(markets, m.toDomain())
	}
	return platform.Truncate(markets, c.limit), nil
}

// GetMarket fetches a market by its Manifold ID.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var raw apiMarket
	if err := c.rest.GetJSON(ctx, "/v0/market/"+url.PathEscape(id), nil, &raw); err != nil {
		return domain.Market{}, fmt.Errorf("manifold: get market %s: %w", id, err)
	}
	if raw.ID == "" {
		return domain.Market{}, fmt.Errorf("manifold: get market %s: %w", id, domain.ErrNotFound)
	}
	return raw.toDomain(), nil
}

var _ domain.PlatformAdapter = (*Client)(nil)
