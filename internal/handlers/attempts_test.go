package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRecordAttempt_Success_Returns201(t *testing.T) {
	var gotIP, gotEmail string
	var gotSuccess bool
	mock := &handlers.MockAttemptService{
		RecordLoginAttemptFunc: func(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error) {
			gotIP, gotEmail, gotSuccess = ip, email, success
			return &models.AttemptOutcome{Recorded: true, IPBlocked: true, RetryAfterSeconds: 900}, nil
		},
	}
	h := handlers.NewAttemptsHandler(mock, discardLogger())

	req := handlers.NewTestRequest(t, "POST", "/v1/attempts", handlers.RecordAttemptRequest{
		IPAddress: "10.0.0.5",
		Email:     "user@example.com",
		Success:   false,
	})
	w := httptest.NewRecorder()
	h.Record(w, req)

	var outcome models.AttemptOutcome
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &outcome)
	assert.True(t, outcome.IPBlocked)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	assert.Equal(t, "10.0.0.5", gotIP)
	assert.Equal(t, "user@example.com", gotEmail)
	assert.False(t, gotSuccess)
}

func TestRecordAttempt_Validation_Returns400(t *testing.T) {
	h := handlers.NewAttemptsHandler(&handlers.MockAttemptService{}, discardLogger())

	w := httptest.NewRecorder()
	h.Record(w, handlers.NewTestRequest(t, "POST", "/v1/attempts", map[string]string{"email": "a@b.c"}))
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_error")
	assert.Contains(t, w.Body.String(), `"details":"ip_address"`)

	req := httptest.NewRequest("POST", "/v1/attempts", nil)
	w = httptest.NewRecorder()
	h.Record(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestRecordAttempt_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid ip", fmt.Errorf("%w: %q", models.ErrInvalidIPAddress, "x"), http.StatusBadRequest, "bad_request"},
		{"store down", fmt.Errorf("%w: %w", models.ErrStoreUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &handlers.MockAttemptService{
				RecordLoginAttemptFunc: func(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error) {
					return nil, tt.err
				},
			}
			h := handlers.NewAttemptsHandler(mock, discardLogger())

			w := httptest.NewRecorder()
			h.Record(w, handlers.NewTestRequest(t, "POST", "/v1/attempts", handlers.RecordAttemptRequest{IPAddress: "x"}))
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestGetIPStatus_Returns200(t *testing.T) {
	mock := &handlers.MockAttemptService{
		IPStatusFunc: func(ctx context.Context, ip string) (*models.BlockStatus, error) {
			return &models.BlockStatus{Key: "ip:" + ip, Blocked: true, RemainingSeconds: 860}, nil
		},
	}
	h := handlers.NewAttemptsHandler(mock, discardLogger())

	req := handlers.WithURLParams(httptest.NewRequest("GET", "/v1/blocks/ip/10.0.0.5", nil), map[string]string{"ip": "10.0.0.5"})
	w := httptest.NewRecorder()
	h.GetIPStatus(w, req)

	var status models.BlockStatus
	handlers.AssertJSONResponse(t, w, http.StatusOK, &status)
	assert.Equal(t, "ip:10.0.0.5", status.Key)
	assert.True(t, status.Blocked)
	assert.Equal(t, int64(860), status.RemainingSeconds)
}

func TestGetEmailStatus_ValidationError_Returns400(t *testing.T) {
	mock := &handlers.MockAttemptService{
		EmailStatusFunc: func(ctx context.Context, email string) (*models.BlockStatus, error) {
			return nil, models.NewValidationError("email", "email is required")
		},
	}
	h := handlers.NewAttemptsHandler(mock, discardLogger())

	req := handlers.WithURLParams(httptest.NewRequest("GET", "/v1/blocks/email/%20", nil), map[string]string{"email": " "})
	w := httptest.NewRecorder()
	h.GetEmailStatus(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_error")
	require.Contains(t, w.Body.String(), "email")
}
