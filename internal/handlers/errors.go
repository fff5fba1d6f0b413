package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// writeServiceError maps service errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, operation string) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", vErr.Message, vErr.Field)
	case errors.Is(err, models.ErrInvalidIPAddress):
		pkghttp.WriteBadRequest(w, "invalid ip address")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "resource already exists")
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.Error(operation+" failed: store unavailable", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "attempt store unavailable")
	default:
		logger.Error(operation+" failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
	}
}

// writeOperationResult renders an administrative mutation outcome. Rejected input
// names a field and maps to 400; a missing entry maps to 404.
func writeOperationResult(w http.ResponseWriter, result *models.OperationResult, successStatus int) {
	switch {
	case result.Success:
		pkghttp.WriteJSON(w, successStatus, result)
	case result.Field != "":
		pkghttp.WriteJSON(w, http.StatusBadRequest, result)
	default:
		pkghttp.WriteJSON(w, http.StatusNotFound, result)
	}
}
