package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/service"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// MarketHandler serves the REST views of the three tools plus run history.
type MarketHandler struct {
	tools  *service.ToolService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(tools *service.ToolService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{tools: tools, logger: logger.With(slog.String("handler", "markets"))}
}

// Search runs a multi-platform search.
// GET /api/markets/search?q=...&platforms=kalshi,manifold
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.tools.SearchMarkets(r.Context(), q.Get("q"), splitList(q.Get("platforms")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetMarket fetches one market.
// GET /api/markets/{platform}/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	res, err := h.tools.GetMarketOdds(r.Context(), r.PathValue("platform"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Compare clusters matching markets across platforms.
// GET /api/compare?q=...
func (h *MarketHandler) Compare(w http.ResponseWriter, r *http.Request) {
	res, err := h.tools.ComparePlatforms(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecentRuns lists recorded compare calls.
// GET /api/comparisons/recent?limit=20
func (h *MarketHandler) RecentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.tools.RecentRuns(r.Context(), parseLimit(r, defaultRunsLimit, maxRunsLimit))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
