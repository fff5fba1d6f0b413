package handlers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/models"
)

func TestValidateRequest(t *testing.T) {
	reason := string(make([]byte, 101))
	active := "active"
	paused := "paused"
	enabled := false

	tests := []struct {
		name    string
		req     any
		field   string
		message string
	}{
		{"valid attempt", handlers.RecordAttemptRequest{IPAddress: "10.0.0.1"}, "", ""},
		{"missing ip", handlers.RecordAttemptRequest{Email: "a@b.c"}, "ip_address", "is required"},
		{"reason too long", handlers.RecordAttemptRequest{IPAddress: "10.0.0.1", Reason: &reason}, "reason", "must be at most 100 characters"},
		{"unknown kind", models.AccessEntryInput{Address: "10.0.0.1", Kind: "range"}, "kind", "must be one of: specific, cidr, blocked"},
		{"patch with known status", models.AccessEntryPatch{Status: &active}, "", ""},
		{"patch with unknown status", models.AccessEntryPatch{Status: &paused}, "status", "must be one of: active, inactive, expired"},
		{"toggle off", handlers.ToggleRequest{Enabled: &enabled}, "", ""},
		{"toggle missing", handlers.ToggleRequest{}, "enabled", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handlers.ValidateRequest(tt.req)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}

			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, tt.message, vErr.Message)
			assert.ErrorIs(t, err, models.ErrBadRequest)
		})
	}
}

func TestValidateRequest_NonStruct(t *testing.T) {
	err := handlers.ValidateRequest("not a struct")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
