// Package aggregator fans queries out to every configured platform adapter,
// merges what comes back and clusters equivalent markets across platforms.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/matching"
)

// DefaultMinConfidence is the match threshold used by Compare when none is
// configured.
const DefaultMinConfidence = 0.5

// Options configures an Aggregator.
type Options struct {
	MinConfidence float64
}

// Aggregator runs multi-platform search, single-market lookup and
// cross-platform comparison. It keeps no state between calls.
type Aggregator struct {
	registry      *Registry
	matcher       *matching.Matcher
	minConfidence float64
	logger        *slog.Logger
}

// New creates an Aggregator over the adapters in reg.
func New(reg *Registry, matcher *matching.Matcher, opts Options, logger *slog.Logger) *Aggregator {
	if opts.MinConfidence <= 0 || opts.MinConfidence > 1 {
		opts.MinConfidence = DefaultMinConfidence
	}
	return &Aggregator{
		registry:      reg,
		matcher:       matcher,
		minConfidence: opts.MinConfidence,
		logger:        logger.With(slog.String("component", "aggregator")),
	}
}

// Search queries the selected adapters concurrently and concatenates their
// results in registry order. Adapter failures are reported in Errors and never
// fail the call. A nil or empty filter selects every adapter.
func (a *Aggregator) Search(ctx context.Context, query string, filter []domain.Platform) domain.SearchResult {
	return a.fanOut(ctx, query, a.registry.Select(filter))
}

// GetMarket fetches one market from one platform. It returns an error
// wrapping domain.ErrUnknownPlatform, without calling any adapter, when the
// platform is not configured.
func (a *Aggregator) GetMarket(ctx context.Context, platform domain.Platform, id string) (domain.Market, error) {
	adapter, ok := a.registry.Get(platform)
	if !ok {
		return domain.Market{}, fmt.Errorf("aggregator: get market: %w: %q", domain.ErrUnknownPlatform, platform)
	}
	m, err := adapter.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("aggregator: get market %s: %w", domain.MarketKey{Platform: platform, ID: id}, err)
	}
	return m, nil
}

// Compare searches every adapter and greedily clusters the merged markets into
// cross-platform comparisons. Markets with no match above the confidence
// threshold are dropped.
func (a *Aggregator) Compare(ctx context.Context, query string) domain.CompareResult {
	res := a.fanOut(ctx, query, a.registry.Select(nil))

	start := time.Now()
	comparisons := a.cluster(res.Markets)
	a.logger.InfoContext(ctx, "clustered markets",
		slog.String("query", query),
		slog.Int("markets", len(res.Markets)),
		slog.Int("comparisons", len(comparisons)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return domain.CompareResult{
		Comparisons: comparisons,
		Errors:      res.Errors,
		MarketCount: len(res.Markets),
	}
}

type outcome struct {
	markets []domain.Market
	err     error
}

// fanOut runs one goroutine per adapter. Each goroutine writes only its own
// slot, so the slots need no locking once Wait returns.
func (a *Aggregator) fanOut(ctx context.Context, query string, adapters []domain.PlatformAdapter) domain.SearchResult {
	outcomes := make([]outcome, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		g.Go(func() error {
			outcomes[i] = a.searchOne(ctx, adapter, query)
			return nil
		})
	}
	_ = g.Wait()

	res := domain.SearchResult{
		Markets: []domain.Market{},
		Errors:  []domain.PlatformError{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, domain.PlatformError{
				Platform: adapters[i].Platform(),
				Err:      o.err,
			})
			continue
		}
		res.Markets = append(res.Markets, o.markets...)
	}
	return res
}

func (a *Aggregator) searchOne(ctx context.Context, adapter domain.PlatformAdapter, query string) (out outcome) {
	platform := adapter.Platform()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: adapter panicked: %v", domain.ErrUpstream, r)}
		}
		if out.err != nil {
			a.logger.WarnContext(ctx, "platform search failed",
				slog.String("platform", string(platform)),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", out.err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "platform search complete",
			slog.String("platform", string(platform)),
			slog.Int("count", len(out.markets)),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()

	markets, err := adapter.SearchMarkets(ctx, query)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{markets: markets}
}
