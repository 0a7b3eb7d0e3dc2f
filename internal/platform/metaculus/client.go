// Package metaculus adapts the Metaculus forecasting API. Metaculus questions
// carry a community forecast rather than a traded price; the median forecast
// is used as the market probability.
package metaculus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

// DefaultBaseURL is the public Metaculus site root.
const DefaultBaseURL = "https://www.metaculus.com"

// Client implements domain.PlatformAdapter for Metaculus.
type Client struct {
	rest    *platform.Client
	limit   int
	siteURL string
}

// NewClient creates a Metaculus adapter. apiToken is optional; when set it is
// sent as "Authorization: Token <apiToken>".
func NewClient(cfg platform.Config, apiToken string) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = platform.DefaultSearchLimit
	}
	rest := platform.NewClient(domain.PlatformMetaculus, cfg)
	if apiToken != "" {
		rest.SetSigner(func(req *http.Request) error {
			req.Header.Set("Authorization", "Token "+apiToken)
			return nil
		})
	}
	return &Client{rest: rest, limit: limit, siteURL: rest.BaseURL()}
}

func (c *Client) Platform() domain.Platform { return domain.PlatformMetaculus }

// SearchMarkets searches open questions.
func (c *Client) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("status", "open")

	var resp listResponse
	if err := c.rest.GetJSON(ctx, "/api2/questions/", params, &resp); err != nil {
		return nil, fmt.Errorf("metaculus: search: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Results))
	for i := range resp.Results {
		markets = append(markets, resp.Results[i].toDomain(c.siteURL))
	}
	return platform.Truncate(markets, c.limit), nil
}

// GetMarket fetches a question by its numeric ID.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return domain.Market{}, fmt.Errorf("metaculus: get market %q: %w: question ids are numeric", id, domain.ErrNotFound)
	}
	var q apiQuestion
	if err := c.rest.GetJSON(ctx, "/api2/questions/"+id+"/", nil, &q); err != nil {
		return domain.Market{}, fmt.Errorf("metaculus: get market %s: %w", id, err)
	}
	return q.toDomain(c.siteURL), nil
}

var _ domain.PlatformAdapter = (*Client)(nil)
