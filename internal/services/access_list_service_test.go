package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
)

func newAccessListFixture() (*services.AccessListService, *services.MockAccessEntryRepository, *services.FakeClock) {
	repo := &services.MockAccessEntryRepository{}
	clock := services.NewFakeClock(testStart)
	return services.NewAccessListService(repo, clock, testLogger()), repo, clock
}

func seed(repo *services.MockAccessEntryRepository, address, kind string, mutate ...func(*models.AccessEntry)) *models.AccessEntry {
	entry := services.NewTestAccessEntry(address, kind)
	for _, m := range mutate {
		m(entry)
	}
	repo.Entries = append(repo.Entries, entry)
	return entry
}

func TestResolveAccess_EmptyAllowListAllows(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()

	decision, err := svc.ResolveAccess(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.AccessReasonAllowListEmpty, decision.Reason)

	// inactive allow entries do not count as an allow list
	seed(repo, "10.0.0.0/8", models.AccessKindCIDR, func(e *models.AccessEntry) { e.Status = models.AccessStatusInactive })
	decision, err = svc.ResolveAccess(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestResolveAccess_AllowListRestricts(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()
	office := seed(repo, "192.168.1.0/24", models.AccessKindCIDR)
	seed(repo, "2001:db8::1", models.AccessKindSpecific)

	decision, err := svc.ResolveAccess(ctx, "192.168.1.77")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.AccessReasonAllowEntry, decision.Reason)
	require.NotNil(t, decision.MatchedEntry)
	assert.Equal(t, office.ID, *decision.MatchedEntry)

	decision, err = svc.ResolveAccess(ctx, "2001:db8::1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = svc.ResolveAccess(ctx, "192.168.2.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.AccessReasonNoMatch, decision.Reason)

	decision, err = svc.ResolveAccess(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestResolveAccess_BlockedWins(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()
	seed(repo, "192.168.1.0/24", models.AccessKindCIDR)
	blocked := seed(repo, "192.168.1.66", models.AccessKindBlocked)

	decision, err := svc.ResolveAccess(ctx, "192.168.1.66")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.AccessReasonBlockedEntry, decision.Reason)
	assert.Equal(t, blocked.ID, *decision.MatchedEntry)

	// a blocked entry alone does not turn on the allow list
	svc2, repo2, _ := newAccessListFixture()
	seed(repo2, "10.0.0.1", models.AccessKindBlocked)
	decision, err = svc2.ResolveAccess(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestResolveAccess_ExpiredBehavesLikeExpiredStatus(t *testing.T) {
	past := testStart.Add(-time.Hour)

	for _, mutate := range []func(*models.AccessEntry){
		func(e *models.AccessEntry) { e.ExpiresAt = &past },
		func(e *models.AccessEntry) { e.Status = models.AccessStatusExpired },
	} {
		svc, repo, _ := newAccessListFixture()
		ctx := context.Background()
		seed(repo, "10.0.0.5", models.AccessKindBlocked, mutate)
		seed(repo, "10.0.0.0/8", models.AccessKindCIDR)
		seed(repo, "172.16.0.0/12", models.AccessKindCIDR, mutate)

		decision, err := svc.ResolveAccess(ctx, "10.0.0.5")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "expired blocked entry is ignored")

		decision, err = svc.ResolveAccess(ctx, "172.16.3.3")
		require.NoError(t, err)
		assert.False(t, decision.Allowed, "expired allow entry is ignored")
	}
}

func TestResolveAccess_ExpiryFollowsClock(t *testing.T) {
	svc, repo, clock := newAccessListFixture()
	ctx := context.Background()
	until := testStart.Add(time.Hour)
	seed(repo, "10.0.0.5", models.AccessKindBlocked, func(e *models.AccessEntry) { e.ExpiresAt = &until })

	decision, err := svc.ResolveAccess(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	clock.Advance(time.Hour)
	decision, err = svc.ResolveAccess(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestResolveAccess_StoreFailure(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	repo.Err = errors.New("connection refused")

	_, err := svc.ResolveAccess(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestAddAllowedIP(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()

	result, err := svc.AddAllowedIP(ctx, "192.168.1.77/24", models.AccessKindCIDR, "office")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "192.168.1.0/24", result.Entry.AddressOrCIDR)
	assert.Equal(t, "office", *result.Entry.Description)
	assert.Equal(t, models.AccessStatusActive, result.Entry.Status)

	result, err = svc.AddAllowedIP(ctx, "10.0.0.0/33", models.AccessKindCIDR, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "address", result.Field)

	result, err = svc.AddAllowedIP(ctx, "10.0.0.1", "wildcard", "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "kind", result.Field)

	assert.Len(t, repo.Entries, 1, "rejected input is never persisted")

	past := testStart.Add(-time.Minute)
	result, err = svc.AddEntry(ctx, models.AccessEntryInput{Address: "10.0.0.1", Kind: models.AccessKindBlocked, ExpiresAt: &past})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "expires_at", result.Field)

	result, err = svc.AddEntry(ctx, models.AccessEntryInput{Address: "10.0.0.1", Kind: models.AccessKindBlocked, CreatedBy: "ops"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "ops", *result.Entry.CreatedBy)

	repo.Err = errors.New("disk full")
	_, err = svc.AddAllowedIP(ctx, "10.0.0.2", models.AccessKindSpecific, "")
	assert.Error(t, err, "infrastructure failures are errors, not results")
}

func TestRemoveAllowedIP(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()
	seed(repo, "10.0.0.1", models.AccessKindSpecific)
	seed(repo, "10.0.0.1", models.AccessKindBlocked)
	seed(repo, "192.168.1.0/24", models.AccessKindCIDR)

	result, err := svc.RemoveAllowedIP(ctx, " 10.0.0.1 ")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.Count)

	result, err = svc.RemoveAllowedIP(ctx, "192.168.1.9/24")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, repo.Entries)

	result, err = svc.RemoveAllowedIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = svc.RemoveAllowedIP(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "address", result.Field)
}

func TestAccessList_GetStats(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	past := testStart.Add(-time.Hour)
	seed(repo, "10.0.0.1", models.AccessKindSpecific)
	seed(repo, "10.0.0.0/8", models.AccessKindCIDR)
	seed(repo, "10.0.0.9", models.AccessKindBlocked, func(e *models.AccessEntry) { e.ExpiresAt = &past })
	seed(repo, "10.0.0.8", models.AccessKindBlocked, func(e *models.AccessEntry) { e.Status = models.AccessStatusInactive })

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.ByKind[models.AccessKindSpecific])
	assert.Equal(t, int64(1), stats.ByKind[models.AccessKindCIDR])
	assert.Equal(t, int64(2), stats.ByKind[models.AccessKindBlocked])
	assert.Equal(t, int64(2), stats.ByStatus[models.AccessStatusActive])
	assert.Equal(t, int64(1), stats.ByStatus[models.AccessStatusExpired])
	assert.Equal(t, int64(1), stats.ByStatus[models.AccessStatusInactive])
}

func TestAccessList_UpdateAndDelete(t *testing.T) {
	svc, repo, _ := newAccessListFixture()
	ctx := context.Background()
	entry := seed(repo, "10.0.0.1", models.AccessKindSpecific)

	inactive := models.AccessStatusInactive
	result, err := svc.UpdateEntry(ctx, entry.ID, models.AccessEntryPatch{Status: &inactive}, "ops")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, models.AccessStatusInactive, result.Entry.Status)

	bogus := "paused"
	result, err = svc.UpdateEntry(ctx, entry.ID, models.AccessEntryPatch{Status: &bogus}, "ops")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "status", result.Field)

	result, err = svc.UpdateEntry(ctx, uuid.New(), models.AccessEntryPatch{}, "ops")
	require.NoError(t, err)
	assert.False(t, result.Success)

	got, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusInactive, got.Status)

	list, err := svc.ListEntries(ctx, models.AccessEntryFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	result, err = svc.DeleteEntry(ctx, entry.ID, "ops")
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = svc.DeleteEntry(ctx, entry.ID, "ops")
	require.NoError(t, err)
	assert.False(t, result.Success)

	_, err = svc.GetEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
