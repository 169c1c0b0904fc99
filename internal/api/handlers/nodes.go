package handlers

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/narvanalabs/fleet-monitor/internal/api/errors"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/internal/nodes"
)

// NodeReader exposes the current fleet.
type NodeReader interface {
	List() []models.Node
	Get(id string) (models.Node, bool)
}

// NodeWriter applies fleet changes and publishes them to stream clients.
type NodeWriter interface {
	UpsertNode(n models.Node) models.Node
	RemoveNode(id string) bool
}

// NodesHandler handles fleet endpoints.
type NodesHandler struct {
	nodes  NodeReader
	writer NodeWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewNodesHandler creates a new nodes handler.
func NewNodesHandler(reader NodeReader, writer NodeWriter, logger *slog.Logger) *NodesHandler {
	return &NodesHandler{
		nodes:  reader,
		writer: writer,
		now:    time.Now,
		logger: logger,
	}
}

// List returns every node in insertion order.
func (h *NodesHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.nodes.List())
}

// Get returns one node.
func (h *NodesHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, ok := h.nodes.Get(chi.URLParam(r, "nodeID"))
	if !ok {
		WriteNotFound(w, r, "Node not found")
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// NodeRequest is the body of PUT /api/nodes/{nodeID}.
type NodeRequest struct {
	Name   string            `json:"name"`
	IP     string            `json:"ip"`
	Type   models.NodeType   `json:"type"`
	Status models.NodeStatus `json:"status,omitempty"`
	Load   models.NodeLoad   `json:"load"`
	Tags   []string          `json:"tags,omitempty"`
}

func (req NodeRequest) validate() apierrors.ValidationErrors {
	var errs apierrors.ValidationErrors
	if req.Name == "" {
		errs.Add("name", "name is required")
	}
	if net.ParseIP(req.IP) == nil {
		errs.Add("ip", "ip must be a valid address")
	}
	if req.Type != models.NodeTypeVoice && req.Type != models.NodeTypeData {
		errs.Add("type", "type must be voice or data")
	}
	switch req.Status {
	case "", models.NodeStatusOnline, models.NodeStatusOffline:
	default:
		errs.Add("status", "status must be online or offline")
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"load.cpu", req.Load.CPU},
		{"load.memory", req.Load.Memory},
		{"load.network", req.Load.Network},
	} {
		if f.value < 0 || f.value > 100 {
			errs.Add(f.name, f.name+" must be between 0 and 100")
		}
	}
	return errs
}

// Put adds a node or replaces the one with the same id.
func (h *NodesHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")

	var req NodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); errs.HasErrors() {
		WriteError(w, r, errs.ToAPIError())
		return
	}

	status := req.Status
	if status == "" {
		status = models.NodeStatusOnline
	}
	_, existed := h.nodes.Get(id)

	n := h.writer.UpsertNode(models.Node{
		ID:          id,
		Name:        req.Name,
		IP:          req.IP,
		Type:        req.Type,
		Status:      status,
		Load:        req.Load,
		Tags:        req.Tags,
		LastUpdated: h.now(),
	})

	h.logger.Info("node stored", "node_id", id, "created", !existed)
	code := http.StatusOK
	if !existed {
		code = http.StatusCreated
	}
	WriteJSON(w, code, n)
}

// Delete removes a node.
func (h *NodesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	if !h.writer.RemoveNode(id) {
		WriteNotFound(w, r, "Node not found")
		return
	}
	h.logger.Info("node removed", "node_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// FleetHandler serves the computed fleet summaries.
type FleetHandler struct {
	nodes NodeReader
	now   func() time.Time
}

// NewFleetHandler creates a new fleet summary handler.
func NewFleetHandler(reader NodeReader) *FleetHandler {
	return &FleetHandler{nodes: reader, now: time.Now}
}

// Status returns the live fleet summary.
func (h *FleetHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, nodes.Status(h.nodes.List(), h.now()))
}

// Health returns the fleet health classification.
func (h *FleetHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, nodes.Health(h.nodes.List(), h.now()))
}
