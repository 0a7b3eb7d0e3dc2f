package kalshi

import (
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Prices are in cents (0-100).
type KalshiMarket struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	YesSubTitle  string  `json:"yes_sub_title"`
	RulesPrimary string  `json:"rules_primary"`
	Status       string  `json:"status"` // "open", "closed", "settled", "finalized"
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	LastPrice    float64 `json:"last_price"`
	Volume       int64   `json:"volume"`
	Result       string  `json:"result"` // "yes", "no", "" (unsettled)
}

// KalshiEvent groups the markets of one event.
type KalshiEvent struct {
	EventTicker string         `json:"event_ticker"`
	Title       string         `json:"title"`
	SubTitle    string         `json:"sub_title"`
	Markets     []KalshiMarket `json:"markets"`
}

type eventsResponse struct {
	Events []KalshiEvent `json:"events"`
	Cursor string        `json:"cursor"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// toDomain converts a Kalshi market. ev is the enclosing event when known.
func (m *KalshiMarket) toDomain(ev *KalshiEvent) domain.Market {
	out := domain.Market{
		Platform:    domain.PlatformKalshi,
		ID:          m.Ticker,
		Title:       m.title(ev),
		Description: m.RulesPrimary,
		Probability: m.probability(),
		URL:         siteURL + "/markets/" + strings.ToLower(m.seriesTicker()),
		Volume:      domain.Float64Ptr(float64(m.Volume)),
	}

	switch strings.ToLower(m.Result) {
	case "yes":
		out.Resolved, out.Resolution, out.Probability = true, "YES", 1
	case "no":
		out.Resolved, out.Resolution, out.Probability = true, "NO", 0
	default:
		if s := strings.ToLower(m.Status); s == "settled" || s == "finalized" {
			out.Resolved = true
		}
	}
	return out
}

// title disambiguates markets inside multi-market events by appending the
// market's yes label.
func (m *KalshiMarket) title(ev *KalshiEvent) string {
	base := m.Title
	if base == "" && ev != nil {
		base = ev.Title
	}
	if ev != nil && len(ev.Markets) > 1 && m.YesSubTitle != "" && !strings.Contains(base, m.YesSubTitle) {
		return base + ": " + m.YesSubTitle
	}
	return base
}

// probability uses the last trade, else the bid/ask midpoint, else 0.5.
func (m *KalshiMarket) probability() float64 {
	switch {
	case m.LastPrice > 0:
		return domain.ClampProbability(m.LastPrice/100, 0.5)
	case m.YesBid > 0 && m.YesAsk > 0:
		return domain.ClampProbability((m.YesBid+m.YesAsk)/200, 0.5)
	}
	return 0.5
}

// seriesTicker is the event ticker's series prefix, which is what the
// kalshi.com market pages are keyed by.
func (m *KalshiMarket) seriesTicker() string {
	t := m.EventTicker
	if t == "" {
		t = m.Ticker
	}
	if i := strings.Index(t, "-"); i > 0 {
		return t[:i]
	}
	return t
}
