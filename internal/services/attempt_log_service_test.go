package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
)

func TestAttemptLog_RecordNormalizes(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	svc := services.NewAttemptLogService(repo, services.NewFakeClock(testStart), testLogger())

	reason := "  bad_password "
	rec, err := svc.Record(context.Background(), "2001:DB8::0001", "  Alice@Example.COM ", strings.Repeat("a", 600), false, &reason)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "2001:db8::1", rec.IPAddress)
	require.NotNil(t, rec.Email)
	assert.Equal(t, "alice@example.com", *rec.Email)
	require.NotNil(t, rec.UserAgent)
	assert.Len(t, *rec.UserAgent, 512)
	assert.Equal(t, "bad_password", *rec.Reason)
	assert.Equal(t, testStart, rec.AttemptedAt)
	assert.False(t, rec.Success)
}

func TestAttemptLog_RecordKeepsTextValidUTF8(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	svc := services.NewAttemptLogService(repo, services.NewFakeClock(testStart), testLogger())

	// the 512-byte cut falls inside the two-byte "é"
	ua := strings.Repeat("a", 511) + "é" + "tail"
	reason := strings.Repeat("r", 254) + "ü" + "\x00"
	rec, err := svc.Record(context.Background(), "10.0.0.1", "Bob\xff@Example.com", ua, false, &reason)
	require.NoError(t, err)

	require.NotNil(t, rec.UserAgent)
	assert.True(t, utf8.ValidString(*rec.UserAgent))
	assert.Equal(t, strings.Repeat("a", 511), *rec.UserAgent)

	require.NotNil(t, rec.Reason)
	assert.True(t, utf8.ValidString(*rec.Reason))
	assert.Equal(t, strings.Repeat("r", 254), *rec.Reason)

	require.NotNil(t, rec.Email)
	assert.Equal(t, "bob@example.com", *rec.Email)
	require.Len(t, repo.Records, 1)
}

func TestAttemptLog_RecordStripsNUL(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	svc := services.NewAttemptLogService(repo, services.NewFakeClock(testStart), testLogger())

	rec, err := svc.Record(context.Background(), "10.0.0.1", "", "curl\x00/8.0", false, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.UserAgent)
	assert.Equal(t, "curl/8.0", *rec.UserAgent)
}

func TestAttemptLog_RecordOptionalFields(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	svc := services.NewAttemptLogService(repo, services.NewFakeClock(testStart), testLogger())

	rec, err := svc.Record(context.Background(), "10.0.0.1", "  ", "", true, nil)
	require.NoError(t, err)
	assert.Nil(t, rec.Email)
	assert.Nil(t, rec.UserAgent)
	assert.Nil(t, rec.Reason)
	assert.True(t, rec.Success)
}

func TestAttemptLog_RecordRejectsInvalidIP(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	svc := services.NewAttemptLogService(repo, services.NewFakeClock(testStart), testLogger())

	_, err := svc.Record(context.Background(), "10.0.0.256", "a@b.c", "", false, nil)
	assert.ErrorIs(t, err, models.ErrInvalidIPAddress)
	assert.Empty(t, repo.Records)
}

func TestAttemptLog_CountFailedSince(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	clock := services.NewFakeClock(testStart)
	svc := services.NewAttemptLogService(repo, clock, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, "10.0.0.1", "", "", false, nil)
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
	}
	_, err := svc.Record(ctx, "10.0.0.1", "", "", true, nil)
	require.NoError(t, err)

	key := models.IPKey("10.0.0.1")

	// failures at 0, 10 and 20 minutes, now at 30
	count, err := svc.CountFailedSince(ctx, key, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = svc.CountFailedSince(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = svc.CountFailedAfter(ctx, key, testStart.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	last, err := svc.LastSuccessAt(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, testStart.Add(30*time.Minute), *last)
}

func TestAttemptLog_Cleanup(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	clock := services.NewFakeClock(testStart)
	svc := services.NewAttemptLogService(repo, clock, testLogger())
	ctx := context.Background()

	_, err := svc.Record(ctx, "10.0.0.1", "", "", false, nil)
	require.NoError(t, err)
	clock.Advance(10 * 24 * time.Hour)
	_, err = svc.Record(ctx, "10.0.0.2", "", "", false, nil)
	require.NoError(t, err)

	deleted, err := svc.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, repo.Records, 1)
	assert.Equal(t, "10.0.0.2", repo.Records[0].IPAddress)

	_, err = svc.Cleanup(ctx, -1)
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)

	repo.Err = errors.New("connection reset")
	_, err = svc.Cleanup(ctx, 7)
	assert.Error(t, err)
}

func TestAttemptLog_CleanupRejectsOverflowingRetention(t *testing.T) {
	repo := &services.MockAttemptLogRepository{}
	clock := services.NewFakeClock(testStart)
	svc := services.NewAttemptLogService(repo, clock, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, "10.0.0.1", "", "", false, nil)
		require.NoError(t, err)
		clock.Advance(30 * time.Minute)
	}

	deleted, err := svc.Cleanup(ctx, 200000)
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "retention_days", vErr.Field)
	assert.Zero(t, deleted)
	assert.Len(t, repo.Records, 3)

	deleted, err = svc.Cleanup(ctx, services.MaxRetentionDays)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, repo.Records, 3)
}
