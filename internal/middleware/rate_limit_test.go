package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
)

func withSubject(req *http.Request, subject string) *http.Request {
	claims := &models.TokenClaims{
		Type:             "access",
		Role:             models.RoleService,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	return req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, claims))
}

func TestRateLimitBySubject_EnforcesPerSubject(t *testing.T) {
	handler := RateLimitBySubject(RateLimitConfig{RequestsPerMinute: 3}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withSubject(httptest.NewRequest("POST", "/v1/attempts", nil), "login-app"))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withSubject(httptest.NewRequest("POST", "/v1/attempts", nil), "login-app"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// another subject has its own budget
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withSubject(httptest.NewRequest("POST", "/v1/attempts", nil), "other-app"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitBySubject_FallsBackToIP(t *testing.T) {
	handler := RateLimitBySubject(RateLimitConfig{RequestsPerMinute: 1}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/blocks/ip/10.0.0.1", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/v1/blocks/ip/10.0.0.1", nil)
	req.RemoteAddr = "192.168.1.1:9090"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	req = httptest.NewRequest("GET", "/v1/blocks/ip/10.0.0.1", nil)
	req.RemoteAddr = "192.168.1.2:8080"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
