// Package kalshi adapts the Kalshi exchange REST API. Market data endpoints
// are public; when an API key is configured requests are signed with RSA-PSS.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

// DefaultBaseURL is the Kalshi trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

const (
	siteURL         = "https://kalshi.com"
	eventsPageLimit = 200
	// maxEventPages bounds one search to this many /events requests.
	maxEventPages = 5
)

// Client implements domain.PlatformAdapter for Kalshi.
type Client struct {
	rest       *platform.Client
	limit      int
	apiKeyID   string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewClient creates a new Kalshi adapter.
//
// apiKeyID is the Kalshi API key identifier. It is only used once a private
// key is installed with SetRSAPrivateKey.
func NewClient(cfg platform.Config, apiKeyID string) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = platform.DefaultSearchLimit
	}
	return &Client{
		rest:     platform.NewClient(domain.PlatformKalshi, cfg),
		limit:    limit,
		apiKeyID: apiKeyID,
		now:      time.Now,
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.installKey(pkcs1Key)
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.installKey(rsaKey)
	return nil
}

func (c *Client) installKey(k *rsa.PrivateKey) {
	c.privateKey = k
	c.rest.SetSigner(c.signRequest)
}

func (c *Client) Platform() domain.Platform { return domain.PlatformKalshi }

// SearchMarkets pages through open events with their nested markets and
// keeps the markets whose event or market text contains every query term. It
// stops once c.limit markets are collected, the cursor runs out, or
// maxEventPages pages have been read.
func (c *Client) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("status", "open")
	params.Set("with_nested_markets", "true")
	params.Set("limit", strconv.Itoa(eventsPageLimit))

	markets := make([]domain.Market, 0)
	for page := 0; page < maxEventPages; page++ {
		var resp eventsResponse
		if err := c.rest.GetJSON(ctx, "/events", params, &resp); err != nil {
			return nil, fmt.Errorf("kalshi: search: page %d: %w", page+1, err)
		}

		for i := range resp.Events {
			ev := &resp.Events[i]
			for j := range ev.Markets {
				m := &ev.Markets[j]
				if !platform.MatchesQuery(query, ev.Title, ev.SubTitle, m.Title, m.YesSubTitle) {
					continue
				}
				markets = append(markets, m.toDomain(ev))
				if len(markets) == c.limit {
					return markets, nil
				}
			}
		}

		if resp.Cursor == "" || len(resp.Events) == 0 {
			break
		}
		params.Set("cursor", resp.Cursor)
	}
	return markets, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := c.rest.GetJSON(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}
	if resp.Market.Ticker == "" {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, domain.ErrNotFound)
	}
	return resp.Market.toDomain(nil), nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over the timestamp + method + path
// message string, where path excludes the query.
func (c *Client) signRequest(req *http.Request) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	message := ts + req.Method + req.URL.Path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

var _ domain.PlatformAdapter = (*Client)(nil)
