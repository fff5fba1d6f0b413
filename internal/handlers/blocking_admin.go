package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// BlockingAdminService is the blocking engine surface used by operators
type BlockingAdminService interface {
	GetBlockingStats(ctx context.Context, hours int) (*models.BlockingStats, error)
	UnblockIP(ctx context.Context, ip string) (bool, error)
	UnblockEmail(ctx context.Context, email string) (bool, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// BlockingAdminHandler serves /admin/blocking
type BlockingAdminHandler struct {
	service              BlockingAdminService
	defaultRetentionDays int
	logger               *slog.Logger
}

// NewBlockingAdminHandler creates a new BlockingAdminHandler
func NewBlockingAdminHandler(service BlockingAdminService, defaultRetentionDays int, logger *slog.Logger) *BlockingAdminHandler {
	return &BlockingAdminHandler{
		service:              service,
		defaultRetentionDays: defaultRetentionDays,
		logger:               logger,
	}
}

// GetStats handles GET /admin/blocking/stats?hours=N (default 24)
func (h *BlockingAdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > services.MaxStatsHours {
			pkghttp.WriteBadRequest(w, fmt.Sprintf("hours must be between 1 and %d", services.MaxStatsHours))
			return
		}
		hours = n
	}

	stats, err := h.service.GetBlockingStats(r.Context(), hours)
	if err != nil {
		writeServiceError(w, h.logger, err, "blocking stats")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// UnblockIP handles DELETE /admin/blocking/ip/{ip}
func (h *BlockingAdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.UnblockIP(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		writeServiceError(w, h.logger, err, "unblock ip")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

// UnblockEmail handles DELETE /admin/blocking/email/{email}
func (h *BlockingAdminHandler) UnblockEmail(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.UnblockEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, h.logger, err, "unblock email")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

// Cleanup handles POST /admin/blocking/cleanup?retention_days=N
func (h *BlockingAdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.defaultRetentionDays
	if v := r.URL.Query().Get("retention_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "retention_days must be a number")
			return
		}
		days = n
	}

	deleted, err := h.service.Cleanup(r.Context(), days)
	if err != nil {
		writeServiceError(w, h.logger, err, "attempt cleanup")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
