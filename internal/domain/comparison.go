package domain

import "time"

// Match is a scored hypothesis that two markets ask the same question.
type Match struct {
	MarketA    Market
	MarketB    Market
	Confidence float64 // 0.0–1.0
}

// Quote is one platform's contribution to a Comparison.
type Quote struct {
	Probability float64 `json:"probability"`
	URL         string  `json:"url"`
}

// Comparison groups markets judged to represent the same real-world question,
// with at most one entry per platform.
type Comparison struct {
	Title     string             `json:"title"`
	Platforms map[Platform]Quote `json:"platforms"`
	Spread    float64            `json:"spread"`
}

// PlatformError records a failed adapter call inside a multi-source operation.
type PlatformError struct {
	Platform Platform
	Err      error
}

func (e PlatformError) Error() string {
	return string(e.Platform) + ": " + e.Err.Error()
}

func (e PlatformError) Unwrap() error { return e.Err }

// SearchResult is the merged output of a multi-platform search. Errors is
// empty when every adapter succeeded.
type SearchResult struct {
	Markets []Market
	Errors  []PlatformError
}

// CompareResult is the output of a cross-platform comparison. MarketCount is
// the number of markets that went into clustering.
type CompareResult struct {
	Comparisons []Comparison
	Errors      []PlatformError
	MarketCount int
}

// ComparisonRun is a finished compare call as recorded for history. It is
// written after the response is built and never read back by the engine.
type ComparisonRun struct {
	ID          string
	Query       string
	Comparisons []Comparison
	Errors      []PlatformError
	MarketCount int
	Duration    time.Duration
	CreatedAt   time.Time
}
