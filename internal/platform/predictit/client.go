// Package predictit adapts the PredictIt market data API. PredictIt has no
// search endpoint, so search filters the full listing client-side.
package predictit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

// DefaultBaseURL is the PredictIt site root.
const DefaultBaseURL = "https://www.predictit.org"

// Client implements domain.PlatformAdapter for PredictIt.
type Client struct {
	rest  *platform.Client
	limit int
}

// NewClient creates a PredictIt adapter.
func NewClient(cfg platform.Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = platform.DefaultSearchLimit
	}
	return &Client{
		rest:  platform.NewClient(domain.PlatformPredictIt, cfg),
		limit: limit,
	}
}

func (c *Client) Platform() domain.Platform { return domain.PlatformPredictIt }

// SearchMarkets downloads all open markets and keeps those whose name or
// contract names contain every query term.
func (c *Client) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	var resp allResponse
	if err := c.rest.GetJSON(ctx, "/api/marketdata/all/", nil, &resp); err != nil {
		return nil, fmt.Errorf("predictit: search: %w", err)
	}

	markets := make([]domain.Market, 0)
	for i := range resp.Markets {
		m := &resp.Markets[i]
		if !m.isOpen() || !platform.MatchesQuery(query, m.searchText()...) {
			continue
		}
		markets = append(markets, m.toDomain())
		if len(markets) == c.limit {
			break
		}
	}
	return markets, nil
}

// GetMarket fetches a market by its numeric ID.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return domain.Market{}, fmt.Errorf("predictit: get market %q: %w: market ids are numeric", id, domain.ErrNotFound)
	}
	var m apiMarket
	if err := c.rest.GetJSON(ctx, "/api/marketdata/markets/"+url.PathEscape(id), nil, &m); err != nil {
		return domain.Market{}, fmt.Errorf("predictit: get market %s: %w", id, err)
	}
	if m.ID == 0 {
		return domain.Market{}, fmt.Errorf("predictit: get market %s: %w", id, domain.ErrNotFound)
	}
	return m.toDomain(), nil
}

var _ domain.PlatformAdapter = (*Client)(nil)
