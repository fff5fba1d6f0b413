package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/sentinel/internal/models"
)

// FakeClock is a Clock that only moves when told to
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockAttemptLogRepository is an in-memory AttemptLogRepository for testing.
// Setting Err makes every call fail.
type MockAttemptLogRepository struct {
	mu         sync.Mutex
	Records    []models.AttemptRecord
	Err        error
	CountCalls int
}

func (m *MockAttemptLogRepository) Append(ctx context.Context, rec *models.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	rec.ID = uuid.New().String()
	m.Records = append(m.Records, *rec)
	return nil
}

func (m *MockAttemptLogRepository) matches(rec models.AttemptRecord, key models.AttemptKey) bool {
	switch key.Kind {
	case models.KeyKindIP:
		return rec.IPAddress == key.Value
	case models.KeyKindEmail:
		return rec.Email != nil && *rec.Email == key.Value
	default:
		return false
	}
}

func (m *MockAttemptLogRepository) CountFailedSince(ctx context.Context, key models.AttemptKey, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CountCalls++
	if m.Err != nil {
		return 0, m.Err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int64
	for _, rec := range m.Records {
		if m.matches(rec, key) && !rec.Success && !rec.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockAttemptLogRepository) LastSuccessAt(ctx context.Context, key models.AttemptKey) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last *time.Time
	for _, rec := range m.Records {
		if m.matches(rec, key) && rec.Success && (last == nil || rec.AttemptedAt.After(*last)) {
			at := rec.AttemptedAt
			last = &at
		}
	}
	return last, nil
}

func (m *MockAttemptLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	kept := m.Records[:0]
	var deleted int64
	for _, rec := range m.Records {
		if rec.AttemptedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.Records = kept
	return deleted, nil
}

func (m *MockAttemptLogRepository) SummarizeSince(ctx context.Context, since time.Time) (*models.AttemptSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	summary := &models.AttemptSummary{}
	ips := make(map[string]struct{})
	for _, rec := range m.Records {
		if rec.AttemptedAt.Before(since) {
			continue
		}
		summary.TotalAttempts++
		if rec.Success {
			summary.SuccessfulAttempts++
		} else {
			summary.FailedAttempts++
		}
		ips[rec.IPAddress] = struct{}{}
	}
	summary.UniqueIPs = int64(len(ips))
	return summary, nil
}

func (m *MockAttemptLogRepository) DistinctIPsSince(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	seen := make(map[string]struct{})
	ips := make([]string, 0)
	for _, rec := range m.Records {
		if rec.AttemptedAt.Before(since) {
			continue
		}
		if _, ok := seen[rec.IPAddress]; !ok {
			seen[rec.IPAddress] = struct{}{}
			ips = append(ips, rec.IPAddress)
		}
	}
	return ips, nil
}

func (m *MockAttemptLogRepository) TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]models.IPFailureCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[string]int64)
	order := make([]string, 0)
	for _, rec := range m.Records {
		if rec.AttemptedAt.Before(since) || rec.Success {
			continue
		}
		if _, ok := counts[rec.IPAddress]; !ok {
			order = append(order, rec.IPAddress)
		}
		counts[rec.IPAddress]++
	}

	result := make([]models.IPFailureCount, 0, len(order))
	for _, ip := range order {
		result = append(result, models.IPFailureCount{IPAddress: ip, FailedAttempts: counts[ip]})
	}
	// insertion sort keeps ties in first-seen order
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].FailedAttempts > result[j-1].FailedAttempts; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MockAccessEntryRepository is an in-memory AccessEntryRepository for testing.
// Setting Err makes every call fail.
type MockAccessEntryRepository struct {
	mu      sync.Mutex
	Entries []*models.AccessEntry
	Err     error
}

func (m *MockAccessEntryRepository) Create(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	created := *entry
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	if created.Status == "" {
		created.Status = models.AccessStatusActive
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.Entries = append(m.Entries, &created)
	out := created
	return &out, nil
}

func (m *MockAccessEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, e := range m.Entries {
		if e.ID == id {
			out := *e
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessEntryRepository) List(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*models.AccessEntry, 0)
	for _, e := range m.Entries {
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out := *e
		result = append(result, &out)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*models.AccessEntry{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockAccessEntryRepository) ListActive(ctx context.Context, now time.Time) ([]*models.AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*models.AccessEntry, 0)
	for _, e := range m.Entries {
		if e.Status == models.AccessStatusActive && (e.ExpiresAt == nil || e.ExpiresAt.After(now)) {
			out := *e
			result = append(result, &out)
		}
	}
	return result, nil
}

func (m *MockAccessEntryRepository) Update(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, e := range m.Entries {
		if e.ID == entry.ID {
			e.Status = entry.Status
			e.Description = entry.Description
			e.ExpiresAt = entry.ExpiresAt
			e.UpdatedAt = time.Now().UTC()
			out := *e
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessEntryRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i, e := range m.Entries {
		if e.ID == id {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockAccessEntryRepository) DeleteByAddress(ctx context.Context, address string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	kept := m.Entries[:0]
	var deleted int64
	for _, e := range m.Entries {
		if e.AddressOrCIDR == address {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.Entries = kept
	return deleted, nil
}

func (m *MockAccessEntryRepository) CountByKindAndStatus(ctx context.Context, now time.Time) ([]models.AccessEntryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	type bucket struct{ kind, status string }
	counts := make(map[bucket]int64)
	for _, e := range m.Entries {
		counts[bucket{e.Kind, EffectiveAccessStatus(e, now)}]++
	}
	result := make([]models.AccessEntryCount, 0, len(counts))
	for b, c := range counts {
		result = append(result, models.AccessEntryCount{Kind: b.kind, Status: b.status, Count: c})
	}
	return result, nil
}

// FailingCacheStore is a cache.Store whose backend is down
type FailingCacheStore struct {
	Err error
}

func (f *FailingCacheStore) err() error {
	if f.Err != nil {
		return f.Err
	}
	return errors.New("cache backend unavailable")
}

func (f *FailingCacheStore) Get(ctx context.Context, key string) (string, error) {
	return "", f.err()
}

func (f *FailingCacheStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return f.err()
}

func (f *FailingCacheStore) Forget(ctx context.Context, key string) error {
	return f.err()
}

// MockBlockNotifier records every notice it receives
type MockBlockNotifier struct {
	mu      sync.Mutex
	Notices []BlockNotice
	Err     error
}

func (m *MockBlockNotifier) NotifyBlocked(ctx context.Context, notice BlockNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, notice)
	return m.Err
}

func (m *MockBlockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notices)
}

// NewTestAccessEntry builds an active entry without touching a repository
func NewTestAccessEntry(address, kind string) *models.AccessEntry {
	return &models.AccessEntry{
		ID:            uuid.New(),
		AddressOrCIDR: address,
		Kind:          kind,
		Status:        models.AccessStatusActive,
	}
}
