package manifold

import (
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// apiMarket is the subset of Manifold's LiteMarket/FullMarket we read.
type apiMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	URL             string   `json:"url"`
	OutcomeType     string   `json:"outcomeType"`
	Probability     *float64 `json:"probability"`
	Volume          float64  `json:"volume"`
	IsResolved      bool     `json:"isResolved"`
	Resolution      string   `json:"resolution"`
	CloseTime       *int64   `json:"closeTime"` // ms since epoch
	TextDescription string   `json:"textDescription"`
	Answers         []answer `json:"answers"`
}

type answer struct {
	Text        string  `json:"text"`
	Probability float64 `json:"probability"`
	IsOther     bool    `json:"isOther"`
}

func (m *apiMarket) toDomain() domain.Market {
	out := domain.Market{
		Platform:    domain.PlatformManifold,
		ID:          m.ID,
		Title:       m.Question,
		Description: m.TextDescription,
		Probability: m.probability(),
		URL:         m.URL,
		Volume:      domain.Float64Ptr(m.Volume),
		Resolved:    m.IsResolved,
	}
	if out.URL == "" {
		out.URL = siteURL + "/market/" + m.ID
	}
	if m.IsResolved {
		out.Resolution = m.Resolution
	}
	return out
}

// probability returns the binary probability, or for multiple-choice markets
// the leading answer's probability. Missing values fall back to 0.5.
func (m *apiMarket) probability() float64 {
	if m.Probability != nil {
		return domain.ClampProbability(*m.Probability, 0.5)
	}
	best, found := 0.0, false
	for _, a := range m.Answers {
		if a.IsOther || strings.TrimSpace(a.Text) == "" {
			continue
		}
		if !found || a.Probability > best {
			best, found = a.Probability, true
		}
	}
	if !found {
		return 0.5
	}
	return domain.ClampProbability(best, 0.5)
}
