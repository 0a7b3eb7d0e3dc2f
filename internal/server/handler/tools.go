package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictmarket/internal/service"
)

// ToolHandler exposes the generic tool catalogue and dispatcher.
type ToolHandler struct {
	tools  *service.ToolService
	logger *slog.Logger
}

// NewToolHandler creates a ToolHandler.
func NewToolHandler(tools *service.ToolService, logger *slog.Logger) *ToolHandler {
	return &ToolHandler{tools: tools, logger: logger.With(slog.String("handler", "tools"))}
}

// ListTools returns the tool descriptors.
// GET /api/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.tools.ListTools()})
}

// CallTool runs the named tool with the JSON request body as arguments.
// POST /api/tools/{name}
func (h *ToolHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := h.tools.Call(r.Context(), r.PathValue("name"), json.RawMessage(body))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
