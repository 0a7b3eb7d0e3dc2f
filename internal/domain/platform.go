package domain

import (
	"context"
	"fmt"
	"strings"
)

// Platform identifies a prediction-market venue.
type Platform string

const (
	PlatformManifold   Platform = "manifold"
	PlatformPolymarket Platform = "polymarket"
	PlatformMetaculus  Platform = "metaculus"
	PlatformPredictIt  Platform = "predictit"
	PlatformKalshi     Platform = "kalshi"
)

// AllPlatforms lists every supported platform in default invocation order.
var AllPlatforms = []Platform{
	PlatformManifold,
	PlatformPolymarket,
	PlatformMetaculus,
	PlatformPredictIt,
	PlatformKalshi,
}

// ParsePlatform converts a user-supplied name into a Platform. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// PlatformAdapter translates one platform's native API into Markets.
// Implementations own their transport concerns: timeouts, auth, pagination
// and rate limiting.
type PlatformAdapter interface {
	// Platform returns the identifier this adapter serves.
	Platform() Platform
	// SearchMarkets returns markets matching a free-text query. An empty
	// result is not an error.
	SearchMarkets(ctx context.Context, query string) ([]Market, error)
	// GetMarket fetches a single market by its platform-native ID. It returns
	// an error wrapping ErrNotFound for unknown IDs and ErrUpstream for
	// transport or decode failures.
	GetMarket(ctx context.Context, id string) (Market, error)
}
