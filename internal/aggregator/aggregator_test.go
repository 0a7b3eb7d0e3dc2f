package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/matching"
)

type fakeAdapter struct {
	platform domain.Platform
	markets  []domain.Market
	err      error
	panicMsg string
	wait     func() error

	searchCalls atomic.Int32
	getCalls    atomic.Int32
	getErr      error
}

func (f *fakeAdapter) Platform() domain.Platform { return f.platform }

func (f *fakeAdapter) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	f.searchCalls.Add(1)
	if f.wait != nil {
		if err := f.wait(); err != nil {
			return nil, err
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

func (f *fakeAdapter) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	f.getCalls.Add(1)
	if f.getErr != nil {
		return domain.Market{}, f.getErr
	}
	for _, m := range f.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func mk(p domain.Platform, id, title string, prob float64) domain.Market {
	return domain.Market{
		Platform:    p,
		ID:          id,
		Title:       title,
		Probability: prob,
		URL:         "https://example.test/" + string(p) + "/" + id,
	}
}

func newTestAggregator(adapters ...domain.PlatformAdapter) *Aggregator {
	reg := NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, matching.New(matching.DefaultOptions()), Options{}, logger)
}

func TestSearchPartialFailure(t *testing.T) {
	upstreamErr := errors.New("connection reset")
	adapters := []*fakeAdapter{
		{platform: domain.PlatformManifold, markets: []domain.Market{
			mk(domain.PlatformManifold, "m1", "one", 0.1),
			mk(domain.PlatformManifold, "m2", "two", 0.2),
		}},
		{platform: domain.PlatformPolymarket, err: upstreamErr},
		{platform: domain.PlatformMetaculus, markets: []domain.Market{
			mk(domain.PlatformMetaculus, "q1", "three", 0.3),
		}},
		{platform: domain.PlatformPredictIt, panicMsg: "boom"},
		{platform: domain.PlatformKalshi, markets: []domain.Market{
			mk(domain.PlatformKalshi, "k1", "four", 0.4),
		}},
	}
	agg := newTestAggregator(toPorts(adapters)...)

	res := agg.Search(context.Background(), "anything", nil)

	var ids []string
	for _, m := range res.Markets {
		ids = append(ids, m.ID)
	}
	wantIDs := []string{"m1", "m2", "q1", "k1"}
	if len(ids) != len(wantIDs) {
		t.Fatalf("market ids = %v, want %v", ids, wantIDs)
	}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], wantIDs[i])
		}
	}

	if len(res.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(res.Errors))
	}
	if res.Errors[0].Platform != domain.PlatformPolymarket || !errors.Is(res.Errors[0], upstreamErr) {
		t.Errorf("Errors[0] = %v, want polymarket wrapping %v", res.Errors[0], upstreamErr)
	}
	if res.Errors[1].Platform != domain.PlatformPredictIt || !errors.Is(res.Errors[1], domain.ErrUpstream) {
		t.Errorf("Errors[1] = %v, want predictit wrapping ErrUpstream", res.Errors[1])
	}
}

func TestSearchTotalFailure(t *testing.T) {
	a := &fakeAdapter{platform: domain.PlatformManifold, err: domain.ErrUpstream}
	b := &fakeAdapter{platform: domain.PlatformKalshi, err: domain.ErrRateLimited}
	agg := newTestAggregator(a, b)

	res := agg.Search(context.Background(), "q", nil)
	if len(res.Markets) != 0 {
		t.Errorf("len(Markets) = %d, want 0", len(res.Markets))
	}
	if len(res.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2", len(res.Errors))
	}
}

func TestSearchRunsAdaptersConcurrently(t *testing.T) {
	const n = 4
	var arrived sync.WaitGroup
	arrived.Add(n)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	// Every adapter blocks until all of them have started. A sequential
	// fan-out would time out in the first adapter.
	wait := func() error {
		arrived.Done()
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("adapters did not run concurrently")
		}
	}

	var adapters []domain.PlatformAdapter
	for _, p := range domain.AllPlatforms[:n] {
		adapters = append(adapters, &fakeAdapter{
			platform: p,
			markets:  []domain.Market{mk(p, "x", "title", 0.5)},
			wait:     wait,
		})
	}
	agg := newTestAggregator(adapters...)

	res := agg.Search(context.Background(), "q", nil)
	if len(res.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", res.Errors)
	}
	if len(res.Markets) != n {
		t.Errorf("len(Markets) = %d, want %d", len(res.Markets), n)
	}
}

func TestSearchFilter(t *testing.T) {
	manifold := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{mk(domain.PlatformManifold, "m", "t", 0.5)}}
	kalshi := &fakeAdapter{platform: domain.PlatformKalshi, markets: []domain.Market{mk(domain.PlatformKalshi, "k", "t", 0.5)}}
	polymarket := &fakeAdapter{platform: domain.PlatformPolymarket}
	agg := newTestAggregator(manifold, polymarket, kalshi)

	res := agg.Search(context.Background(), "q", []domain.Platform{domain.PlatformKalshi, "nosuch", domain.PlatformManifold})

	if len(res.Markets) != 2 || res.Markets[0].ID != "m" || res.Markets[1].ID != "k" {
		t.Errorf("Markets = %+v, want [m k] in registry order", res.Markets)
	}
	if got := polymarket.searchCalls.Load(); got != 0 {
		t.Errorf("polymarket called %d times, want 0", got)
	}

	res = agg.Search(context.Background(), "q", []domain.Platform{"nosuch"})
	if len(res.Markets) != 0 || len(res.Errors) != 0 {
		t.Errorf("unknown-only filter = %+v, want empty result", res)
	}
}

func TestGetMarket(t *testing.T) {
	manifold := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{mk(domain.PlatformManifold, "abc", "t", 0.3)}}
	failing := &fakeAdapter{platform: domain.PlatformPolymarket, getErr: domain.ErrUpstream}
	agg := newTestAggregator(manifold, failing)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		m, err := agg.GetMarket(ctx, domain.PlatformManifold, "abc")
		if err != nil {
			t.Fatalf("GetMarket: %v", err)
		}
		if m.ID != "abc" {
			t.Errorf("ID = %q, want %q", m.ID, "abc")
		}
	})

	t.Run("not found propagates", func(t *testing.T) {
		_, err := agg.GetMarket(ctx, domain.PlatformManifold, "zzz")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("upstream propagates", func(t *testing.T) {
		_, err := agg.GetMarket(ctx, domain.PlatformPolymarket, "x")
		if !errors.Is(err, domain.ErrUpstream) {
			t.Errorf("err = %v, want ErrUpstream", err)
		}
	})

	t.Run("unknown platform makes no call", func(t *testing.T) {
		before := manifold.getCalls.Load() + failing.getCalls.Load()
		_, err := agg.GetMarket(ctx, domain.PlatformKalshi, "x")
		if !errors.Is(err, domain.ErrUnknownPlatform) {
			t.Errorf("err = %v, want ErrUnknownPlatform", err)
		}
		if after := manifold.getCalls.Load() + failing.getCalls.Load(); after != before {
			t.Errorf("adapter calls went from %d to %d, want unchanged", before, after)
		}
	})
}

func TestCompareTwoPlatformSpread(t *testing.T) {
	p1 := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "a", "Will candidate X win the election in 2024?", 0.62),
	}}
	p2 := &fakeAdapter{platform: domain.PlatformPolymarket, markets: []domain.Market{
		mk(domain.PlatformPolymarket, "b", "X to win 2024 election", 0.58),
	}}
	agg := newTestAggregator(p1, p2)

	res := agg.Compare(context.Background(), "candidate X")
	if len(res.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", res.Errors)
	}
	if len(res.Comparisons) != 1 {
		t.Fatalf("len(Comparisons) = %d, want 1", len(res.Comparisons))
	}
	c := res.Comparisons[0]
	if c.Title != "Will candidate X win the election in 2024?" {
		t.Errorf("Title = %q, want the first-discovered market's title", c.Title)
	}
	if c.Platforms[domain.PlatformManifold].Probability != 0.62 || c.Platforms[domain.PlatformPolymarket].Probability != 0.58 {
		t.Errorf("Platforms = %+v", c.Platforms)
	}
	if math.Abs(c.Spread-0.04) > 1e-9 {
		t.Errorf("Spread = %v, want 0.04", c.Spread)
	}
}

func TestCompareYearMismatchDropped(t *testing.T) {
	p1 := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "a", "Will candidate X win in 2024?", 0.6),
	}}
	p2 := &fakeAdapter{platform: domain.PlatformPolymarket, markets: []domain.Market{
		mk(domain.PlatformPolymarket, "b", "Will candidate X win in 2028?", 0.3),
	}}
	agg := newTestAggregator(p1, p2)

	res := agg.Compare(context.Background(), "candidate X")
	if len(res.Comparisons) != 0 {
		t.Errorf("Comparisons = %+v, want none", res.Comparisons)
	}
}

func TestComparePartitionsMarkets(t *testing.T) {
	manifold := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "btc", "Bitcoin above 100k in 2025", 0.4),
		mk(domain.PlatformManifold, "fed", "Fed cuts rates in March 2025", 0.3),
	}}
	polymarket := &fakeAdapter{platform: domain.PlatformPolymarket, markets: []domain.Market{
		mk(domain.PlatformPolymarket, "fed", "Will the Fed cut rates in March 2025?", 0.35),
		mk(domain.PlatformPolymarket, "btc", "Bitcoin above 100k in 2025?", 0.45),
	}}
	kalshi := &fakeAdapter{platform: domain.PlatformKalshi, markets: []domain.Market{
		mk(domain.PlatformKalshi, "euro", "Who wins Eurovision", 0.1),
		mk(domain.PlatformKalshi, "btc", "Bitcoin above 100k in 2025", 0.5),
	}}
	agg := newTestAggregator(manifold, polymarket, kalshi)

	res := agg.Compare(context.Background(), "2025")
	if len(res.Comparisons) != 2 {
		t.Fatalf("len(Comparisons) = %d, want 2: %+v", len(res.Comparisons), res.Comparisons)
	}

	seen := map[string]int{}
	for _, c := range res.Comparisons {
		if len(c.Platforms) < 2 {
			t.Errorf("comparison %q has %d platforms, want at least 2", c.Title, len(c.Platforms))
		}
		for _, q := range c.Platforms {
			seen[q.URL]++
		}
	}
	for url, n := range seen {
		if n > 1 {
			t.Errorf("market %s appears in %d comparisons", url, n)
		}
	}
	if _, ok := seen["https://example.test/kalshi/euro"]; ok {
		t.Error("unmatched market should be dropped")
	}

	// Discovery order follows the first unprocessed target.
	if res.Comparisons[0].Title != "Bitcoin above 100k in 2025" {
		t.Errorf("Comparisons[0].Title = %q", res.Comparisons[0].Title)
	}
	if res.Comparisons[1].Title != "Fed cuts rates in March 2025" {
		t.Errorf("Comparisons[1].Title = %q", res.Comparisons[1].Title)
	}
	if got := res.Comparisons[0].Spread; math.Abs(got-0.1) > 1e-9 {
		t.Errorf("btc spread = %v, want 0.1", got)
	}
}

func TestCompareSamePlatformCollapse(t *testing.T) {
	const title = "Fed cuts rates in March 2025"
	lowVol := mk(domain.PlatformPolymarket, "p1", title, 0.5)
	lowVol.Volume = domain.Float64Ptr(10)
	highVol := mk(domain.PlatformPolymarket, "p2", title, 0.6)
	highVol.Volume = domain.Float64Ptr(100)

	manifold := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "m1", title, 0.4),
		mk(domain.PlatformManifold, "m2", title, 0.9),
	}}
	polymarket := &fakeAdapter{platform: domain.PlatformPolymarket, markets: []domain.Market{lowVol, highVol}}
	kalshi := &fakeAdapter{platform: domain.PlatformKalshi, markets: []domain.Market{
		mk(domain.PlatformKalshi, "k1", title+" meeting", 0.45),
	}}
	agg := newTestAggregator(manifold, polymarket, kalshi)

	res := agg.Compare(context.Background(), "fed")
	if len(res.Comparisons) != 1 {
		t.Fatalf("len(Comparisons) = %d, want 1", len(res.Comparisons))
	}
	c := res.Comparisons[0]
	if len(c.Platforms) != 3 {
		t.Fatalf("len(Platforms) = %d, want 3", len(c.Platforms))
	}
	if got := c.Platforms[domain.PlatformManifold].URL; got != "https://example.test/manifold/m1" {
		t.Errorf("manifold slot = %s, want the target m1", got)
	}
	if got := c.Platforms[domain.PlatformPolymarket].URL; got != "https://example.test/polymarket/p2" {
		t.Errorf("polymarket slot = %s, want higher-volume p2", got)
	}
	if math.Abs(c.Spread-0.2) > 1e-9 {
		t.Errorf("Spread = %v, want 0.2", c.Spread)
	}
}

func TestCompareSamePlatformOnlyMatch(t *testing.T) {
	const title = "Fed cuts rates in March 2025"
	manifold := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "m1", title, 0.4),
		mk(domain.PlatformManifold, "m2", title, 0.7),
	}}
	agg := newTestAggregator(manifold)

	res := agg.Compare(context.Background(), "fed")
	if len(res.Comparisons) != 1 {
		t.Fatalf("len(Comparisons) = %d, want 1: %+v", len(res.Comparisons), res.Comparisons)
	}
	c := res.Comparisons[0]
	if len(c.Platforms) != 1 {
		t.Fatalf("len(Platforms) = %d, want 1", len(c.Platforms))
	}
	q, ok := c.Platforms[domain.PlatformManifold]
	if !ok || q.URL != "https://example.test/manifold/m1" || q.Probability != 0.4 {
		t.Errorf("manifold slot = %+v, want the target m1", q)
	}
	if c.Spread != 0 {
		t.Errorf("Spread = %v, want 0", c.Spread)
	}
	for _, other := range res.Comparisons[1:] {
		if _, seeded := other.Platforms[domain.PlatformManifold]; seeded {
			t.Errorf("consumed m2 seeded its own comparison: %+v", other)
		}
	}
}

func TestCompareSingleSourceYieldsNothing(t *testing.T) {
	only := &fakeAdapter{platform: domain.PlatformManifold, markets: []domain.Market{
		mk(domain.PlatformManifold, "a", "Fed cuts rates", 0.4),
	}}
	failing := &fakeAdapter{platform: domain.PlatformKalshi, err: domain.ErrUpstream}
	agg := newTestAggregator(only, failing)

	res := agg.Compare(context.Background(), "fed")
	if len(res.Comparisons) != 0 {
		t.Errorf("Comparisons = %+v, want none", res.Comparisons)
	}
	if len(res.Errors) != 1 || res.Errors[0].Platform != domain.PlatformKalshi {
		t.Errorf("Errors = %v, want one kalshi error", res.Errors)
	}
}

func TestRegistryOrderAndReplace(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{platform: domain.PlatformKalshi})
	reg.Register(&fakeAdapter{platform: domain.PlatformManifold})
	replacement := &fakeAdapter{platform: domain.PlatformKalshi}
	reg.Register(replacement)

	got := reg.Platforms()
	if len(got) != 2 || got[0] != domain.PlatformKalshi || got[1] != domain.PlatformManifold {
		t.Errorf("Platforms() = %v, want [kalshi manifold]", got)
	}
	a, ok := reg.Get(domain.PlatformKalshi)
	if !ok || a != replacement {
		t.Errorf("Get(kalshi) did not return the replacement adapter")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func toPorts(in []*fakeAdapter) []domain.PlatformAdapter {
	out := make([]domain.PlatformAdapter, len(in))
	for i, a := range in {
		out[i] = a
	}
	return out
}
