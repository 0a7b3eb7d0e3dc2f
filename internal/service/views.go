package service

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// MaxDescriptionLen is the display cap for market descriptions, in runes.
const MaxDescriptionLen = 500

const ellipsis = "..."

// MarketView is the serialized form of a Market.
type MarketView struct {
	Platform    domain.Platform `json:"platform"`
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Probability float64         `json:"probability"`
	URL         string          `json:"url"`
	Volume      *int64          `json:"volume,omitempty"`
	Resolved    bool            `json:"resolved,omitempty"`
	Resolution  string          `json:"resolution,omitempty"`
}

// ErrorView reports one failed platform.
type ErrorView struct {
	Platform domain.Platform `json:"platform"`
	Error    string          `json:"error"`
}

// QuoteView is one platform's entry in a ComparisonView.
type QuoteView struct {
	Probability float64 `json:"probability"`
	URL         string  `json:"url"`
}

// ComparisonView is the serialized form of a Comparison.
type ComparisonView struct {
	Title     string                        `json:"title"`
	Platforms map[domain.Platform]QuoteView `json:"platforms"`
	Spread    float64                       `json:"spread"`
}

// SearchView is the search_markets result.
type SearchView struct {
	Markets []MarketView `json:"markets"`
	Errors  []ErrorView  `json:"errors"`
}

// CompareView is the compare_platforms result.
type CompareView struct {
	Comparisons []ComparisonView `json:"comparisons"`
	Errors      []ErrorView      `json:"errors"`
}

// RunView summarizes a recorded compare call.
type RunView struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	CreatedAt   string           `json:"created_at"`
	DurationMs  int64            `json:"duration_ms"`
	MarketCount int              `json:"market_count"`
	Comparisons []ComparisonView `json:"comparisons"`
	Errors      []ErrorView      `json:"errors"`
}

// round3 rounds half away from zero to three decimal places.
func round3(v float64) float64 {
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxDescriptionLen {
		return s
	}
	return string(r[:MaxDescriptionLen]) + ellipsis
}

// NewMarketView rounds and truncates m for display.
func NewMarketView(m domain.Market) MarketView {
	v := MarketView{
		Platform:    m.Platform,
		ID:          m.ID,
		Title:       m.Title,
		Description: truncate(m.Description),
		Probability: round3(m.Probability),
		URL:         m.URL,
	}
	if m.Volume != nil {
		n := decimal.NewFromFloat(*m.Volume).Round(0).IntPart()
		v.Volume = &n
	}
	if m.Resolved {
		v.Resolved = true
		v.Resolution = m.Resolution
	}
	return v
}

func newErrorViews(errs []domain.PlatformError) []ErrorView {
	out := make([]ErrorView, 0, len(errs))
	for _, e := range errs {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		out = append(out, ErrorView{Platform: e.Platform, Error: msg})
	}
	return out
}

// NewComparisonView rounds every probability and the spread for display.
func NewComparisonView(c domain.Comparison) ComparisonView {
	v := ComparisonView{
		Title:     c.Title,
		Platforms: make(map[domain.Platform]QuoteView, len(c.Platforms)),
		Spread:    round3(c.Spread),
	}
	for p, q := range c.Platforms {
		v.Platforms[p] = QuoteView{Probability: round3(q.Probability), URL: q.URL}
	}
	return v
}

func newComparisonViews(cs []domain.Comparison) []ComparisonView {
	out := make([]ComparisonView, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewComparisonView(c))
	}
	return out
}

// NewSearchView converts an aggregator search result.
func NewSearchView(res domain.SearchResult) SearchView {
	v := SearchView{
		Markets: make([]MarketView, 0, len(res.Markets)),
		Errors:  newErrorViews(res.Errors),
	}
	for _, m := range res.Markets {
		v.Markets = append(v.Markets, NewMarketView(m))
	}
	return v
}

// NewCompareView converts an aggregator compare result.
func NewCompareView(res domain.CompareResult) CompareView {
	return CompareView{
		Comparisons: newComparisonViews(res.Comparisons),
		Errors:      newErrorViews(res.Errors),
	}
}

// NewRunView converts a recorded run.
func NewRunView(r domain.ComparisonRun) RunView {
	return RunView{
		ID:          r.ID,
		Query:       r.Query,
		CreatedAt:   r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DurationMs:  r.Duration.Milliseconds(),
		MarketCount: r.MarketCount,
		Comparisons: newComparisonViews(r.Comparisons),
		Errors:      newErrorViews(r.Errors),
	}
}
