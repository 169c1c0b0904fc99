package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/fleet-monitor/internal/alerts"
	"github.com/narvanalabs/fleet-monitor/internal/api/middleware"
	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// AlertsHandler handles alert and alert rule endpoints.
type AlertsHandler struct {
	engine *alerts.Engine
	logger *slog.Logger
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(engine *alerts.Engine, logger *slog.Logger) *AlertsHandler {
	return &AlertsHandler{
		engine: engine,
		logger: logger,
	}
}

// List returns every recorded alert, acknowledged or not.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Alerts())
}

// Active returns unacknowledged alerts, most severe and newest first.
func (h *AlertsHandler) Active(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.ActiveAlerts())
}

// Acknowledge marks an alert as handled by the caller.
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	if !h.engine.Acknowledge(id, middleware.GetUserID(r.Context())) {
		WriteNotFound(w, r, "Alert not found")
		return
	}
	alert, ok := h.engine.Alert(id)
	if !ok {
		// Deleted between the acknowledgement and the read.
		WriteNotFound(w, r, "Alert not found")
		return
	}
	WriteJSON(w, http.StatusOK, alert)
}

// Delete discards an alert.
func (h *AlertsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.engine.DeleteAlert(chi.URLParam(r, "alertID")) {
		WriteNotFound(w, r, "Alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRules returns the rule table.
func (h *AlertsHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Rules())
}

// CreateRule adds a rule. A missing id is generated.
func (h *AlertsHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	if err := alerts.ValidateRule(rule); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	if rule.ID != "" {
		if _, exists := h.engine.Rule(rule.ID); exists {
			WriteConflict(w, r, "Alert rule already exists")
			return
		}
	}

	WriteJSON(w, http.StatusCreated, h.engine.AddRule(rule))
}

// UpdateRule merges a partial update into a rule.
func (h *AlertsHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")

	var patch alerts.RulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	current, ok := h.engine.Rule(id)
	if !ok {
		WriteNotFound(w, r, "Alert rule not found")
		return
	}
	if err := alerts.ValidateRule(patch.Apply(current)); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	updated, ok := h.engine.UpdateRule(id, patch)
	if !ok {
		WriteNotFound(w, r, "Alert rule not found")
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// DeleteRule removes a rule. Alerts it produced are kept.
func (h *AlertsHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.engine.DeleteRule(chi.URLParam(r, "ruleID")) {
		WriteNotFound(w, r, "Alert rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
