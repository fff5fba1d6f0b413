package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// AccessAdminService manages access list entries
type AccessAdminService interface {
	ListEntries(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error)
	AddEntry(ctx context.Context, input models.AccessEntryInput) (*models.OperationResult, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, patch models.AccessEntryPatch, actor string) (*models.OperationResult, error)
	DeleteEntry(ctx context.Context, id uuid.UUID, actor string) (*models.OperationResult, error)
	RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error)
	GetStats(ctx context.Context) (*models.AccessStats, error)
}

// GateController is the runtime control surface of the access gate
type GateController interface {
	CheckIPAccess(ctx context.Context, ip string) (*models.AccessDecision, error)
	SetEnabled(enabled bool, actor string)
	IsEnabled() bool
}

// ToggleRequest is the body of PUT /admin/access/toggle
type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// AccessAdminHandler serves /admin/access-entries and /admin/access
type AccessAdminHandler struct {
	service AccessAdminService
	gate    GateController
	logger  *slog.Logger
}

// NewAccessAdminHandler creates a new AccessAdminHandler
func NewAccessAdminHandler(service AccessAdminService, gate GateController, logger *slog.Logger) *AccessAdminHandler {
	return &AccessAdminHandler{service: service, gate: gate, logger: logger}
}

// ListEntries handles GET /admin/access-entries?kind=&status=&limit=&offset=
func (h *AccessAdminHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AccessEntryFilter{
		Kind:   q.Get("kind"),
		Status: q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "list access entries")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// CreateEntry handles POST /admin/access-entries
func (h *AccessAdminHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var input models.AccessEntryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(input); err != nil {
		writeServiceError(w, h.logger, err, "create access entry")
		return
	}
	input.CreatedBy = auth.ActorFromRequest(r)

	result, err := h.service.AddEntry(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err, "create access entry")
		return
	}
	writeOperationResult(w, result, http.StatusCreated)
}

// GetEntry handles GET /admin/access-entries/{id}
func (h *AccessAdminHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntryID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get access entry")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, entry)
}

// UpdateEntry handles PATCH /admin/access-entries/{id}
func (h *AccessAdminHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntryID(w, r)
	if !ok {
		return
	}

	var patch models.AccessEntryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(patch); err != nil {
		writeServiceError(w, h.logger, err, "update access entry")
		return
	}

	result, err := h.service.UpdateEntry(r.Context(), id, patch, auth.ActorFromRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, err, "update access entry")
		return
	}
	writeOperationResult(w, result, http.StatusOK)
}

// DeleteEntry handles DELETE /admin/access-entries/{id}
func (h *AccessAdminHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEntryID(w, r)
	if !ok {
		return
	}

	result, err := h.service.DeleteEntry(r.Context(), id, auth.ActorFromRequest(r))
	if err != nil {
		writeServiceError(w, h.logger, err, "delete access entry")
		return
	}
	writeOperationResult(w, result, http.StatusOK)
}

// RemoveByAddress handles DELETE /admin/access-entries?address=
func (h *AccessAdminHandler) RemoveByAddress(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		pkghttp.WriteBadRequest(w, "address query parameter is required")
		return
	}

	result, err := h.service.RemoveAllowedIP(r.Context(), address)
	if err != nil {
		writeServiceError(w, h.logger, err, "remove access entries")
		return
	}
	writeOperationResult(w, result, http.StatusOK)
}

// GetStats handles GET /admin/access/stats
func (h *AccessAdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "access stats")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": h.gate.IsEnabled(),
		"stats":   stats,
	})
}

// Check handles GET /admin/access/check?ip=
func (h *AccessAdminHandler) Check(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "ip query parameter is required")
		return
	}

	decision, err := h.gate.CheckIPAccess(r.Context(), ip)
	if err != nil {
		writeServiceError(w, h.logger, err, "access check")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, decision)
}

// Toggle handles PUT /admin/access/toggle
func (h *AccessAdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, h.logger, err, "toggle access gate")
		return
	}

	h.gate.SetEnabled(*req.Enabled, auth.ActorFromRequest(r))
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": h.gate.IsEnabled()})
}

func parseEntryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid entry id")
		return uuid.Nil, false
	}
	return id, true
}
