package aggregator

import "github.com/alanyoungcy/predictmarket/internal/domain"

// slot is the market currently holding one platform's entry in a comparison.
type slot struct {
	market     domain.Market
	confidence float64
	target     bool
}

// cluster sweeps markets in order. Each unprocessed market becomes a target
// and is matched against every other unprocessed market; matched candidates
// are consumed so they cannot seed or join another comparison.
func (a *Aggregator) cluster(markets []domain.Market) []domain.Comparison {
	processed := make(map[domain.MarketKey]struct{}, len(markets))
	comparisons := []domain.Comparison{}

	for _, target := range markets {
		key := target.Key()
		if _, done := processed[key]; done {
			continue
		}
		processed[key] = struct{}{}

		candidates := make([]domain.Market, 0, len(markets))
		for _, m := range markets {
			if _, done := processed[m.Key()]; done {
				continue
			}
			candidates = append(candidates, m)
		}

		matches := a.matcher.FindMatches(target, candidates, a.minConfidence)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			processed[m.MarketB.Key()] = struct{}{}
		}
		comparisons = append(comparisons, buildComparison(target, matches))
	}
	return comparisons
}

// buildComparison keeps at most one market per platform. The target owns its
// own platform. Among matches from the same platform the higher confidence
// wins, then the higher volume, then the earlier match.
func buildComparison(target domain.Market, matches []domain.Match) domain.Comparison {
	slots := map[domain.Platform]slot{
		target.Platform: {market: target, confidence: 1, target: true},
	}
	for _, m := range matches {
		p := m.MarketB.Platform
		cur, ok := slots[p]
		if !ok {
			slots[p] = slot{market: m.MarketB, confidence: m.Confidence}
			continue
		}
		if cur.target {
			continue
		}
		if m.Confidence > cur.confidence ||
			(m.Confidence == cur.confidence && volumeOf(m.MarketB) > volumeOf(cur.market)) {
			slots[p] = slot{market: m.MarketB, confidence: m.Confidence}
		}
	}

	c := domain.Comparison{
		Title:     target.Title,
		Platforms: make(map[domain.Platform]domain.Quote, len(slots)),
	}
	lo, hi := 1.0, 0.0
	for p, s := range slots {
		prob := s.market.Probability
		c.Platforms[p] = domain.Quote{Probability: prob, URL: s.market.URL}
		lo = min(lo, prob)
		hi = max(hi, prob)
	}
	c.Spread = hi - lo
	return c
}

// volumeOf treats a missing volume as lower than any reported one.
func volumeOf(m domain.Market) float64 {
	if m.Volume == nil {
		return -1
	}
	return *m.Volume
}
