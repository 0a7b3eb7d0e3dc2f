package predictit

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type allResponse struct {
	Markets []apiMarket `json:"markets"`
}

type apiMarket struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	ShortName string        `json:"shortName"`
	URL       string        `json:"url"`
	Status    string        `json:"status"`
	Contracts []apiContract `json:"contracts"`
}

type apiContract struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	ShortName      string   `json:"shortName"`
	Status         string   `json:"status"`
	LastTradePrice *float64 `json:"lastTradePrice"`
	BestBuyYesCost *float64 `json:"bestBuyYesCost"`
}

func (m *apiMarket) isOpen() bool {
	return m.Status == "" || strings.EqualFold(m.Status, "open")
}

func (m *apiMarket) searchText() []string {
	out := []string{m.Name, m.ShortName}
	for _, c := range m.Contracts {
		out = append(out, c.Name)
	}
	return out
}

func (m *apiMarket) toDomain() domain.Market {
	id := strconv.FormatInt(m.ID, 10)
	out := domain.Market{
		Platform:    domain.PlatformPredictIt,
		ID:          id,
		Title:       m.Name,
		Probability: 0.5,
		URL:         m.URL,
	}
	if out.URL == "" {
		out.URL = DefaultBaseURL + "/markets/detail/" + id
	}

	lead, ok := m.leadContract()
	if !ok {
		return out
	}
	out.Probability = lead.price()
	if len(m.Contracts) > 1 {
		out.Description = "Leading contract: " + lead.Name
	}
	return out
}

// leadContract is the contract with the highest price. For single-contract
// markets that is simply the Yes contract.
func (m *apiMarket) leadContract() (apiContract, bool) {
	var best apiContract
	found := false
	for _, c := range m.Contracts {
		if !found || c.price() > best.price() {
			best, found = c, true
		}
	}
	return best, found
}

func (c apiContract) price() float64 {
	switch {
	case c.LastTradePrice != nil:
		return domain.ClampProbability(*c.LastTradePrice, 0.5)
	case c.BestBuyYesCost != nil:
		return domain.ClampProbability(*c.BestBuyYesCost, 0.5)
	}
	return 0.5
}
