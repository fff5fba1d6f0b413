package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithClaims adds token claims to request context for testing authenticated endpoints
func WithClaims(req *http.Request, subject, role string) *http.Request {
	claims := &models.TokenClaims{
		Type:             "access",
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParams attaches chi route parameters to the request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAttemptService implements AttemptService and BlockingAdminService for testing
type MockAttemptService struct {
	RecordLoginAttemptFunc func(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error)
	IPStatusFunc           func(ctx context.Context, ip string) (*models.BlockStatus, error)
	EmailStatusFunc        func(ctx context.Context, email string) (*models.BlockStatus, error)
	GetBlockingStatsFunc   func(ctx context.Context, hours int) (*models.BlockingStats, error)
	UnblockIPFunc          func(ctx context.Context, ip string) (bool, error)
	UnblockEmailFunc       func(ctx context.Context, email string) (bool, error)
	CleanupFunc            func(ctx context.Context, retentionDays int) (int64, error)
}

func (m *MockAttemptService) RecordLoginAttempt(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error) {
	if m.RecordLoginAttemptFunc == nil {
		return &models.AttemptOutcome{Recorded: true}, nil
	}
	return m.RecordLoginAttemptFunc(ctx, ip, email, userAgent, success, reason)
}

func (m *MockAttemptService) IPStatus(ctx context.Context, ip string) (*models.BlockStatus, error) {
	if m.IPStatusFunc == nil {
		return &models.BlockStatus{Key: "ip:" + ip}, nil
	}
	return m.IPStatusFunc(ctx, ip)
}

func (m *MockAttemptService) EmailStatus(ctx context.Context, email string) (*models.BlockStatus, error) {
	if m.EmailStatusFunc == nil {
		return &models.BlockStatus{Key: "email:" + email}, nil
	}
	return m.EmailStatusFunc(ctx, email)
}

func (m *MockAttemptService) GetBlockingStats(ctx context.Context, hours int) (*models.BlockingStats, error) {
	if m.GetBlockingStatsFunc == nil {
		return &models.BlockingStats{WindowHours: hours}, nil
	}
	return m.GetBlockingStatsFunc(ctx, hours)
}

func (m *MockAttemptService) UnblockIP(ctx context.Context, ip string) (bool, error) {
	if m.UnblockIPFunc == nil {
		return true, nil
	}
	return m.UnblockIPFunc(ctx, ip)
}

func (m *MockAttemptService) UnblockEmail(ctx context.Context, email string) (bool, error) {
	if m.UnblockEmailFunc == nil {
		return true, nil
	}
	return m.UnblockEmailFunc(ctx, email)
}

func (m *MockAttemptService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if m.CleanupFunc == nil {
		return 0, nil
	}
	return m.CleanupFunc(ctx, retentionDays)
}

// MockAccessAdminService implements AccessAdminService for testing
type MockAccessAdminService struct {
	ListEntriesFunc     func(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error)
	GetEntryFunc        func(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error)
	AddEntryFunc        func(ctx context.Context, input models.AccessEntryInput) (*models.OperationResult, error)
	UpdateEntryFunc     func(ctx context.Context, id uuid.UUID, patch models.AccessEntryPatch, actor string) (*models.OperationResult, error)
	DeleteEntryFunc     func(ctx context.Context, id uuid.UUID, actor string) (*models.OperationResult, error)
	RemoveAllowedIPFunc func(ctx context.Context, address string) (*models.OperationResult, error)
	GetStatsFunc        func(ctx context.Context) (*models.AccessStats, error)
}

func (m *MockAccessAdminService) ListEntries(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error) {
	if m.ListEntriesFunc == nil {
		return []*models.AccessEntry{}, nil
	}
	return m.ListEntriesFunc(ctx, filter)
}

func (m *MockAccessAdminService) GetEntry(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error) {
	if m.GetEntryFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetEntryFunc(ctx, id)
}

func (m *MockAccessAdminService) AddEntry(ctx context.Context, input models.AccessEntryInput) (*models.OperationResult, error) {
	if m.AddEntryFunc == nil {
		return &models.OperationResult{Success: true}, nil
	}
	return m.AddEntryFunc(ctx, input)
}

func (m *MockAccessAdminService) UpdateEntry(ctx context.Context, id uuid.UUID, patch models.AccessEntryPatch, actor string) (*models.OperationResult, error) {
	if m.UpdateEntryFunc == nil {
		return &models.OperationResult{Success: false, Message: "access entry not found"}, nil
	}
	return m.UpdateEntryFunc(ctx, id, patch, actor)
}

func (m *MockAccessAdminService) DeleteEntry(ctx context.Context, id uuid.UUID, actor string) (*models.OperationResult, error) {
	if m.DeleteEntryFunc == nil {
		return &models.OperationResult{Success: false, Message: "access entry not found"}, nil
	}
	return m.DeleteEntryFunc(ctx, id, actor)
}

func (m *MockAccessAdminService) RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error) {
	if m.RemoveAllowedIPFunc == nil {
		return &models.OperationResult{Success: true, Count: 1}, nil
	}
	return m.RemoveAllowedIPFunc(ctx, address)
}

func (m *MockAccessAdminService) GetStats(ctx context.Context) (*models.AccessStats, error) {
	if m.GetStatsFunc == nil {
		return &models.AccessStats{}, nil
	}
	return m.GetStatsFunc(ctx)
}

// MockGate implements GateController for testing
type MockGate struct {
	Enabled           bool
	LastActor         string
	CheckIPAccessFunc func(ctx context.Context, ip string) (*models.AccessDecision, error)
}

func (m *MockGate) CheckIPAccess(ctx context.Context, ip string) (*models.AccessDecision, error) {
	if m.CheckIPAccessFunc == nil {
		return &models.AccessDecision{Allowed: true, Reason: models.AccessReasonAllowListEmpty}, nil
	}
	return m.CheckIPAccessFunc(ctx, ip)
}

func (m *MockGate) SetEnabled(enabled bool, actor string) {
	m.Enabled = enabled
	m.LastActor = actor
}

func (m *MockGate) IsEnabled() bool {
	return m.Enabled
}
