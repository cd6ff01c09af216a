package handlers

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler holds the dependencies needed by the health endpoint.
// the struct keeps the constructor pattern consistent with the other
// handlers even though only the logger is needed today.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// healthResponse is the JSON body returned by the health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
// intentionally simple: no db check, no auth. it is the minimum signal that
// the process is alive and the HTTP stack works; external monitors expect it
// at the root path, not under /api.
func (handler *HealthHandler) Health(responseWriter http.ResponseWriter, request *http.Request) {
	writeJsonAndRespond(responseWriter, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
