package handlers

import (
	"net/http"

	"github.com/narvanalabs/fleet-monitor/internal/metrics"
	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// MetricsSource answers range queries over recorded history.
type MetricsSource interface {
	Metrics(rangeName string) metrics.Result
	SystemMetrics(rangeName string) []models.SystemMetrics
}

// MetricsHandler handles metrics history endpoints. Unknown ranges fall back
// to one hour.
type MetricsHandler struct {
	source MetricsSource
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(source MetricsSource) *MetricsHandler {
	return &MetricsHandler{source: source}
}

// Metrics returns per-node and system history for ?range=.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.source.Metrics(r.URL.Query().Get("range")))
}

// Public returns only the system history, for unauthenticated dashboards.
func (h *MetricsHandler) Public(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.source.SystemMetrics(r.URL.Query().Get("range")))
}
