package metaculus

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type listResponse struct {
	Results []apiQuestion `json:"results"`
}

// apiQuestion covers both the legacy flat question shape and the newer post
// shape where forecasts live under "question".
type apiQuestion struct {
	ID                  int64           `json:"id"`
	Title               string          `json:"title"`
	PageURL             string          `json:"page_url"`
	Slug                string          `json:"slug"`
	Description         string          `json:"description"`
	Status              string          `json:"status"`
	Resolution          json.RawMessage `json:"resolution"`
	NumberOfForecasters *float64        `json:"number_of_forecasters"`
	NrForecasters       *float64        `json:"nr_forecasters"`
	CommunityPrediction *struct {
		Full struct {
			Q2 *float64 `json:"q2"`
		} `json:"full"`
	} `json:"community_prediction"`
	Question *struct {
		Description  string          `json:"description"`
		Resolution   json.RawMessage `json:"resolution"`
		Aggregations struct {
			RecencyWeighted struct {
				Latest *struct {
					Centers []float64 `json:"centers"`
				} `json:"latest"`
			} `json:"recency_weighted"`
		} `json:"aggregations"`
	} `json:"question"`
}

func (q *apiQuestion) toDomain(siteURL string) domain.Market {
	id := strconv.FormatInt(q.ID, 10)
	out := domain.Market{
		Platform:    domain.PlatformMetaculus,
		ID:          id,
		Title:       q.Title,
		Description: q.description(),
		Probability: q.probability(),
		URL:         q.url(siteURL, id),
		Volume:      q.forecasters(),
	}
	if label, ok := q.resolution(); ok {
		out.Resolved = true
		out.Resolution = label
	} else if strings.EqualFold(q.Status, "resolved") {
		out.Resolved = true
	}
	return out
}

func (q *apiQuestion) description() string {
	if q.Description != "" {
		return q.Description
	}
	if q.Question != nil {
		return q.Question.Description
	}
	return ""
}

// probability is the community median, else 0.5 when nobody has forecast yet.
func (q *apiQuestion) probability() float64 {
	if q.CommunityPrediction != nil && q.CommunityPrediction.Full.Q2 != nil {
		return domain.ClampProbability(*q.CommunityPrediction.Full.Q2, 0.5)
	}
	if q.Question != nil {
		if latest := q.Question.Aggregations.RecencyWeighted.Latest; latest != nil && len(latest.Centers) > 0 {
			return domain.ClampProbability(latest.Centers[0], 0.5)
		}
	}
	return 0.5
}

func (q *apiQuestion) forecasters() *float64 {
	switch {
	case q.NumberOfForecasters != nil:
		return domain.Float64Ptr(*q.NumberOfForecasters)
	case q.NrForecasters != nil:
		return domain.Float64Ptr(*q.NrForecasters)
	}
	return nil
}

func (q *apiQuestion) url(siteURL, id string) string {
	switch {
	case strings.HasPrefix(q.PageURL, "http"):
		return q.PageURL
	case q.PageURL != "":
		return siteURL + q.PageURL
	}
	return siteURL + "/questions/" + id + "/"
}

// resolution decodes the legacy numeric code (1 yes, 0 no, -1 ambiguous,
// -2 annulled) or the newer string label.
func (q *apiQuestion) resolution() (string, bool) {
	raw := q.Resolution
	if len(raw) == 0 || string(raw) == "null" {
		if q.Question == nil {
			return "", false
		}
		raw = q.Question.Resolution
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		switch {
		case n == 1:
			return "YES", true
		case n == 0:
			return "NO", true
		case n == -1:
			return "AMBIGUOUS", true
		case n == -2:
			return "ANNULLED", true
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return strings.ToUpper(s), true
	}
	return "", false
}
