// Package matching scores how likely two markets from different platforms
// ask the same question, using token overlap between normalized titles.
package matching

import (
	"sort"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const (
	defaultEntityBoost         = 0.25
	defaultYearMismatchPenalty = 0.5
)

// Options tunes the composite score.
type Options struct {
	// EntityBoost closes this fraction of the remaining gap to 1.0 when both
	// titles share a year or proper noun.
	EntityBoost float64
	// YearMismatchPenalty multiplies the score when both titles name years
	// and none of them coincide.
	YearMismatchPenalty float64
}

// DefaultOptions returns the weights used when none are configured.
func DefaultOptions() Options {
	return Options{
		EntityBoost:         defaultEntityBoost,
		YearMismatchPenalty: defaultYearMismatchPenalty,
	}
}

// Matcher scores title similarity. It holds no per-call state and is safe
// for concurrent use.
type Matcher struct {
	opts Options
}

// New creates a Matcher. Out-of-range weights fall back to the defaults.
func New(opts Options) *Matcher {
	if opts.EntityBoost < 0 || opts.EntityBoost >= 1 {
		opts.EntityBoost = defaultEntityBoost
	}
	if opts.YearMismatchPenalty <= 0 || opts.YearMismatchPenalty > 1 {
		opts.YearMismatchPenalty = defaultYearMismatchPenalty
	}
	return &Matcher{opts: opts}
}

// Score returns the similarity of two titles in [0, 1]. It is 1.0 only when
// both titles normalize to the same token multiset, and 0 when either title
// is empty after normalization.
func (m *Matcher) Score(a, b string) float64 {
	return m.score(Normalize(a), Normalize(b))
}

// FindMatches scores every candidate against target and returns those with
// confidence >= minConfidence (inclusive), highest first. Ties keep the
// candidates' input order. The caller must leave target out of candidates.
func (m *Matcher) FindMatches(target domain.Market, candidates []domain.Market, minConfidence float64) []domain.Match {
	t := Normalize(target.Title)

	var out []domain.Match
	for _, c := range candidates {
		s := m.score(t, Normalize(c.Title))
		if s < minConfidence {
			continue
		}
		out = append(out, domain.Match{
			MarketA:    target,
			MarketB:    c,
			Confidence: s,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (m *Matcher) score(a, b Title) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}

	// Multiset Jaccard: sum of min counts over sum of max counts.
	var inter, union int
	for tok, ca := range a.tokens {
		cb := b.tokens[tok]
		inter += min(ca, cb)
		union += max(ca, cb)
	}
	for tok, cb := range b.tokens {
		if _, ok := a.tokens[tok]; !ok {
			union += cb
		}
	}
	s := float64(inter) / float64(union)

	if sharesEntity(a, b) {
		s += (1 - s) * m.opts.EntityBoost
	}
	if len(a.years) > 0 && len(b.years) > 0 && !sharesAny(a.years, b.years) {
		s *= m.opts.YearMismatchPenalty
	}

	return min(max(s, 0), 1)
}

func sharesAny(a, b map[string]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
