// Package polymarket adapts the Polymarket Gamma API, which provides market
// discovery, metadata and search.
package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

// DefaultBaseURL is the Gamma API root.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

const siteURL = "https://polymarket.com"

// GammaClient implements domain.PlatformAdapter for Polymarket.
type GammaClient struct {
	rest  *platform.Client
	limit int
}

// NewGammaClient creates a Gamma API adapter.
func NewGammaClient(cfg platform.Config) *GammaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = platform.DefaultSearchLimit
	}
	return &GammaClient{
		rest:  platform.NewClient(domain.PlatformPolymarket, cfg),
		limit: limit,
	}
}

func (g *GammaClient) Platform() domain.Platform { return domain.PlatformPolymarket }

// SearchMarkets runs Gamma's public search and flattens the markets nested in
// matching events. Closed or inactive markets are skipped and each market ID
// appears once.
func (g *GammaClient) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit_per_type", strconv.Itoa(g.limit))

	var resp searchResponse
	if err := g.rest.GetJSON(ctx, "/public-search", params, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search: %w", err)
	}

	seen := make(map[string]bool)
	var markets []domain.Market
	for i := range resp.Events {
		ev := &resp.Events[i]
		for j := range ev.Markets {
			m := &ev.Markets[j]
			id := string(m.ID)
			if id == "" || seen[id] {
				continue
			}
			if m.Closed || (m.Active != nil && !bool(*m.Active)) {
				continue
			}
			seen[id] = true
			markets = append(markets, m.toDomain(ev.Slug))
		}
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	return platform.Truncate(markets, g.limit), nil
}

// GetMarket returns a single market by its Gamma ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var m apiMarket
	if err := g.rest.GetJSON(ctx, "/markets/"+url.PathEscape(id), nil, &m); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}
	if m.ID == "" {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, domain.ErrNotFound)
	}
	return m.toDomain(""), nil
}

var _ domain.PlatformAdapter = (*GammaClient)(nil)
