package domain

import "math"

// Market is one listing from one prediction-market platform, normalized to a
// common shape. ID is unique within Platform only.
type Market struct {
	Platform    Platform `json:"platform"`
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Probability float64  `json:"probability"` // primary outcome, 0..1
	URL         string   `json:"url"`
	Volume      *float64 `json:"volume,omitempty"` // platform-specific units
	Resolved    bool     `json:"resolved,omitempty"`
	Resolution  string   `json:"resolution,omitempty"`
}

// Key returns the market's deduplication identity.
func (m Market) Key() MarketKey {
	return MarketKey{Platform: m.Platform, ID: m.ID}
}

// MarketKey identifies a market across platforms. Two markets with different
// keys are never treated as the same market by identity alone.
type MarketKey struct {
	Platform Platform
	ID       string
}

func (k MarketKey) String() string {
	return string(k.Platform) + ":" + k.ID
}

// ClampProbability coerces v into [0, 1]. NaN and infinities map to fallback.
func ClampProbability(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Float64Ptr returns a pointer to v. Handy for optional Market.Volume values.
func Float64Ptr(v float64) *float64 {
	return &v
}
