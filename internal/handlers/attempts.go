package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// AttemptService is the blocking engine surface used by the service API
type AttemptService interface {
	RecordLoginAttempt(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error)
	IPStatus(ctx context.Context, ip string) (*models.BlockStatus, error)
	EmailStatus(ctx context.Context, email string) (*models.BlockStatus, error)
}

// RecordAttemptRequest is the body of POST /v1/attempts
type RecordAttemptRequest struct {
	IPAddress string  `json:"ip_address" validate:"required,max=45"`
	Email     string  `json:"email" validate:"omitempty,max=255"`
	UserAgent string  `json:"user_agent"`
	Success   bool    `json:"success"`
	Reason    *string `json:"reason" validate:"omitempty,max=100"`
}

// AttemptsHandler serves the service API used by login front-ends
type AttemptsHandler struct {
	service AttemptService
	logger  *slog.Logger
}

// NewAttemptsHandler creates a new AttemptsHandler
func NewAttemptsHandler(service AttemptService, logger *slog.Logger) *AttemptsHandler {
	return &AttemptsHandler{service: service, logger: logger}
}

// Record handles POST /v1/attempts
func (h *AttemptsHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, h.logger, err, "record attempt")
		return
	}

	outcome, err := h.service.RecordLoginAttempt(r.Context(), req.IPAddress, req.Email, req.UserAgent, req.Success, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err, "record attempt")
		return
	}

	pkghttp.SetRetryAfter(w, time.Duration(outcome.RetryAfterSeconds)*time.Second)
	pkghttp.WriteJSON(w, http.StatusCreated, outcome)
}

// GetIPStatus handles GET /v1/blocks/ip/{ip}
func (h *AttemptsHandler) GetIPStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.IPStatus(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		writeServiceError(w, h.logger, err, "ip status")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// GetEmailStatus handles GET /v1/blocks/email/{email}
func (h *AttemptsHandler) GetEmailStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.EmailStatus(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, h.logger, err, "email status")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}
