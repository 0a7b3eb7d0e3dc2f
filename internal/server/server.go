// Package server is the HTTP and WebSocket front end of predictmarket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimitPerMinute caps requests per client IP. It needs a limiter.
	RateLimitPerMinute int
	// Proxies decides when forwarding headers name the client.
	Proxies middleware.ProxyTrust
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Tools   *handler.ToolHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// limiter and wsHub may be nil.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, h, limiter, wsHub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, h Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/tools", h.Tools.ListTools)
	mux.HandleFunc("POST /api/tools/{name}", h.Tools.CallTool)

	mux.HandleFunc("GET /api/markets/search", h.Markets.Search)
	mux.HandleFunc("GET /api/markets/{platform}/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/compare", h.Markets.Compare)
	mux.HandleFunc("GET /api/comparisons/recent", h.Markets.RecentRuns)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var wrapped http.Handler = mux
	wrapped = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute, cfg.Proxies, logger)(wrapped)
	wrapped = middleware.Auth(cfg.APIKey, "/api/health")(wrapped)
	wrapped = middleware.Logging(logger, cfg.Proxies)(wrapped)
	wrapped = middleware.CORS(cfg.CORSOrigins)(wrapped)
	return wrapped
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
