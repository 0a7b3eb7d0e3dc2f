// Package service exposes the aggregation engine as three JSON tools and
// records finished comparisons.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Tool names.
const (
	ToolSearchMarkets    = "search_markets"
	ToolGetMarketOdds    = "get_market_odds"
	ToolComparePlatforms = "compare_platforms"
)

// Engine is the aggregation surface the tools run on.
type Engine interface {
	Search(ctx context.Context, query string, filter []domain.Platform) domain.SearchResult
	GetMarket(ctx context.Context, platform domain.Platform, id string) (domain.Market, error)
	Compare(ctx context.Context, query string) domain.CompareResult
}

// ToolService validates tool arguments, calls the engine and shapes results
// for display.
type ToolService struct {
	engine   Engine
	recorder *Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewToolService creates a ToolService. recorder may be nil.
func NewToolService(engine Engine, recorder *Recorder, logger *slog.Logger) *ToolService {
	return &ToolService{
		engine:   engine,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "tool_service")),
		now:      time.Now,
	}
}

// SearchMarkets searches the named platforms, or all of them when platforms
// is empty. Unknown platform names select nothing.
func (s *ToolService) SearchMarkets(ctx context.Context, query string, platforms []string) (SearchView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchView{}, fmt.Errorf("service: search markets: %w: query is required", domain.ErrInvalidArgument)
	}

	var filter []domain.Platform
	for _, p := range platforms {
		filter = append(filter, domain.Platform(strings.ToLower(strings.TrimSpace(p))))
	}

	res := s.engine.Search(ctx, query, filter)
	return NewSearchView(res), nil
}

// GetMarketOdds fetches one market.
func (s *ToolService) GetMarketOdds(ctx context.Context, platform, marketID string) (MarketView, error) {
	p, err := domain.ParsePlatform(platform)
	if err != nil {
		return MarketView{}, fmt.Errorf("service: get market odds: %w", err)
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return MarketView{}, fmt.Errorf("service: get market odds: %w: market_id is required", domain.ErrInvalidArgument)
	}

	m, err := s.engine.GetMarket(ctx, p, marketID)
	if err != nil {
		return MarketView{}, err
	}
	return NewMarketView(m), nil
}

// ComparePlatforms clusters matching markets across every platform and
// records the run when a recorder is configured.
func (s *ToolService) ComparePlatforms(ctx context.Context, query string) (CompareView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return CompareView{}, fmt.Errorf("service: compare platforms: %w: query is required", domain.ErrInvalidArgument)
	}

	start := s.now()
	res := s.engine.Compare(ctx, query)
	elapsed := s.now().Sub(start)

	if s.recorder != nil {
		s.recorder.RecordAsync(ctx, domain.ComparisonRun{
			Query:       query,
			Comparisons: res.Comparisons,
			Errors:      res.Errors,
			MarketCount: res.MarketCount,
			Duration:    elapsed,
			CreatedAt:   start,
		})
	}
	return NewCompareView(res), nil
}

// RecentRuns lists recorded compare calls, newest first.
func (s *ToolService) RecentRuns(ctx context.Context, limit int) ([]RunView, error) {
	if s.recorder == nil || s.recorder.store == nil {
		return nil, fmt.Errorf("service: recent runs: %w: run history is not configured", domain.ErrNotFound)
	}
	runs, err := s.recorder.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: recent runs: %w", err)
	}
	out := make([]RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, NewRunView(r))
	}
	return out, nil
}

type searchArgs struct {
	Query     string   `json:"query"`
	Platforms []string `json:"platforms"`
}

type oddsArgs struct {
	Platform string `json:"platform"`
	MarketID string `json:"market_id"`
}

type compareArgs struct {
	Query string `json:"query"`
}

// Call dispatches a tool by name with JSON-encoded arguments. Unknown tools
// and malformed arguments return an error wrapping domain.ErrInvalidArgument.
func (s *ToolService) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	start := s.now()
	result, err := s.call(ctx, name, raw)

	attrs := []any{
		slog.String("tool", name),
		slog.Duration("elapsed", s.now().Sub(start)),
	}
	if err != nil {
		s.logger.WarnContext(ctx, "tool call failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	s.logger.InfoContext(ctx, "tool call complete", attrs...)
	return result, nil
}

func (s *ToolService) call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	switch name {
	case ToolSearchMarkets:
		var args searchArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.SearchMarkets(ctx, args.Query, args.Platforms)
	case ToolGetMarketOdds:
		var args oddsArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.GetMarketOdds(ctx, args.Platform, args.MarketID)
	case ToolComparePlatforms:
		var args compareArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.ComparePlatforms(ctx, args.Query)
	default:
		return nil, fmt.Errorf("service: %w: unknown tool %q", domain.ErrInvalidArgument, name)
	}
}

// decodeArgs strictly decodes a JSON object. Empty input decodes as {}.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("service: %w: arguments: %v", domain.ErrInvalidArgument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("service: %w: arguments: trailing data", domain.ErrInvalidArgument)
	}
	return nil
}

// ToolDescriptor describes one tool for discovery.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ListTools returns the tool catalogue.
func (s *ToolService) ListTools() []ToolDescriptor {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return []ToolDescriptor{
		{
			Name:        ToolSearchMarkets,
			Description: "Search for prediction markets across platforms",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": str("Search query (e.g., 'Will Trump win 2024?')"),
					"platforms": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string", "enum": platformEnum()},
						"description": "Optional: filter to specific platforms",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolGetMarketOdds,
			Description: "Get current odds for a specific market",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"platform":  str("Platform name (manifold, polymarket, metaculus, predictit, kalshi)"),
					"market_id": str("The market's native ID"),
				},
				"required": []string{"platform", "market_id"},
			},
		},
		{
			Name:        ToolComparePlatforms,
			Description: "Side-by-side odds comparison for markets matching a query",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": str("Search query to find markets to compare"),
				},
				"required": []string{"query"},
			},
		},
	}
}

func platformEnum() []string {
	out := make([]string, 0, len(domain.AllPlatforms))
	for _, p := range domain.AllPlatforms {
		out = append(out, string(p))
	}
	return out
}
