package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexString accepts a JSON string or number. Gamma IDs come back either way.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// stringList decodes either a JSON array or a string holding a JSON-encoded
// array, e.g. "[\"Yes\",\"No\"]". Elements may be strings or numbers.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		data = []byte(encoded)
	}
	var raw []flexString
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = string(v)
	}
	*l = out
	return nil
}

// searchResponse is the body of GET /public-search.
type searchResponse struct {
	Events []apiEvent `json:"events"`
}

// apiEvent groups one or more related markets.
type apiEvent struct {
	ID      flexString  `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Markets []apiMarket `json:"markets"`
}

// apiMarket represents a market as returned by the Gamma API.
type apiMarket struct {
	ID                  flexString  `json:"id"`
	Question            string      `json:"question"`
	Title               string      `json:"title"`
	Slug                string      `json:"slug"`
	Description         string      `json:"description"`
	Active              *flexBool   `json:"active"`
	Closed              bool        `json:"closed"`
	Outcomes            stringList  `json:"outcomes"`
	OutcomePrices       stringList  `json:"outcomePrices"`
	Volume              flexFloat   `json:"volume"`
	VolumeNum           flexFloat   `json:"volumeNum"`
	UMAResolutionStatus string      `json:"umaResolutionStatus"`
	Events              []eventLink `json:"events"`
}

type eventLink struct {
	Slug string `json:"slug"`
}

// toDomain converts a Gamma market. eventSlug is the enclosing event's slug
// when the market came from a search result.
func (m *apiMarket) toDomain(eventSlug string) domain.Market {
	title := m.Question
	if title == "" {
		title = m.Title
	}
	vol := float64(m.Volume)
	if vol == 0 {
		vol = float64(m.VolumeNum)
	}

	out := domain.Market{
		Platform:    domain.PlatformPolymarket,
		ID:          string(m.ID),
		Title:       title,
		Description: m.Description,
		Probability: m.yesProbability(),
		URL:         m.url(eventSlug),
		Volume:      domain.Float64Ptr(vol),
	}
	if m.Closed && strings.EqualFold(m.UMAResolutionStatus, "resolved") {
		out.Resolved = true
		out.Resolution = m.winningOutcome()
	}
	return out
}

func (m *apiMarket) outcomeNames() []string {
	if len(m.Outcomes) == 0 {
		return []string{"Yes", "No"}
	}
	return m.Outcomes
}

func (m *apiMarket) prices() []float64 {
	out := make([]float64, len(m.OutcomePrices))
	for i, p := range m.OutcomePrices {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			out[i] = 0.5
			continue
		}
		out[i] = domain.ClampProbability(v, 0.5)
	}
	return out
}

// yesProbability is the price of the "Yes" outcome, else the first outcome,
// else 0.5.
func (m *apiMarket) yesProbability() float64 {
	prices := m.prices()
	if len(prices) == 0 {
		return 0.5
	}
	for i, name := range m.outcomeNames() {
		if strings.EqualFold(strings.TrimSpace(name), "yes") && i < len(prices) {
			return prices[i]
		}
	}
	return prices[0]
}

func (m *apiMarket) winningOutcome() string {
	names := m.outcomeNames()
	for i, p := range m.prices() {
		if p >= 0.99 && i < len(names) {
			return names[i]
		}
	}
	return ""
}

func (m *apiMarket) url(eventSlug string) string {
	if len(m.Events) > 0 && m.Events[0].Slug != "" {
		eventSlug = m.Events[0].Slug
	}
	if eventSlug != "" {
		return siteURL + "/event/" + eventSlug
	}
	slug := m.Slug
	if slug == "" {
		slug = string(m.ID)
	}
	return siteURL + "/market/" + slug
}
