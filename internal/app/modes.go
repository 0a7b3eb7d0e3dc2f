package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/server"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
	"github.com/alanyoungcy/predictmarket/internal/service"
)

// ServerMode serves the HTTP API, plus the WebSocket run feed when a signal
// bus is configured, until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
		slog.Int("platforms", deps.Registry.Len()),
	)

	proxies, err := middleware.ParseTrustedProxies(a.cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("app: server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, []string{service.ChannelComparisons}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	platforms := make([]string, 0, deps.Registry.Len())
	for _, p := range deps.Registry.Platforms() {
		platforms = append(platforms, string(p))
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		Proxies:            proxies,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(platforms, deps.Probes, a.logger),
		Markets: handler.NewMarketHandler(deps.Tools, a.logger),
		Tools:   handler.NewToolHandler(deps.Tools, a.logger),
	}, deps.RateLimiter, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeoutOf())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// toolRequest is one line of tools-mode input.
type toolRequest struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolResponse is one line of tools-mode output. Exactly one of Result and
// Error is set.
type toolResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *toolError      `json:"error,omitempty"`
}

type toolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// listToolsName asks for the tool catalogue instead of calling a tool.
const listToolsName = "list_tools"

// maxToolLine bounds one request line.
const maxToolLine = 1 << 20

// ToolsMode reads newline-delimited JSON tool calls from in and writes one
// JSON response per line to out. It returns nil at end of input.
func (a *App) ToolsMode(ctx context.Context, deps *Dependencies, in io.Reader, out io.Writer) error {
	a.logger.InfoContext(ctx, "starting tools mode", slog.Int("platforms", deps.Registry.Len()))
	return serveTools(ctx, deps.Tools, in, out, a.logger)
}

func serveTools(ctx context.Context, tools *service.ToolService, in io.Reader, out io.Writer, logger *slog.Logger) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxToolLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("app: tools mode: read: %w", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := enc.Encode(handleToolLine(ctx, tools, line, logger)); err != nil {
				return fmt.Errorf("app: tools mode: write: %w", err)
			}
		}
	}
}

func handleToolLine(ctx context.Context, tools *service.ToolService, line []byte, logger *slog.Logger) toolResponse {
	var req toolRequest
	if err := json.Unmarshal(line, &req); err != nil {
		logger.WarnContext(ctx, "malformed tool request", slog.String("error", err.Error()))
		return toolResponse{
			ID:    json.RawMessage("null"),
			Error: &toolError{Code: "invalid_request", Message: err.Error()},
		}
	}
	resp := toolResponse{ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	start := time.Now()
	if req.Tool == listToolsName {
		resp.Result = tools.ListTools()
		return resp
	}
	result, err := tools.Call(ctx, req.Tool, req.Arguments)
	if err != nil {
		resp.Error = &toolError{Code: errorCode(err), Message: err.Error()}
		return resp
	}
	resp.Result = result
	logger.DebugContext(ctx, "tool request served",
		slog.String("tool", req.Tool),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp
}

// errorCode maps a service error to a stable machine-readable code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownPlatform):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "upstream_error"
	}
}
