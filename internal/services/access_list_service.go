package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/sentinel/internal/ipnet"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

// AccessEntryRepository defines the durable store port for access list entries
type AccessEntryRepository interface {
	Create(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error)
	List(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.AccessEntry, error)
	Update(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByAddress(ctx context.Context, address string) (int64, error)
	CountByKindAndStatus(ctx context.Context, now time.Time) ([]models.AccessEntryCount, error)
}

// AccessListService manages the network access list and resolves client
// addresses against it
type AccessListService struct {
	repo        AccessEntryRepository
	clock       Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
}

// NewAccessListService creates a new AccessListService
func NewAccessListService(repo AccessEntryRepository, clock Clock, logger *slog.Logger) *AccessListService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AccessListService{
		repo:        repo,
		clock:       clock,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
}

// SetMetrics attaches prometheus counters
func (s *AccessListService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// ResolveAccess decides whether the client may pass, in fixed order: a matching
// active blocked entry denies; an empty allow list allows; a matching active
// allow entry allows; anything else is denied. An unparseable client address
// matches no entry.
func (s *AccessListService) ResolveAccess(ctx context.Context, clientIP string) (*models.AccessDecision, error) {
	now := s.clock.Now()

	entries, err := s.repo.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	client, _ := ipnet.ParseAddr(clientIP)

	var allowEntries []*models.AccessEntry
	for _, entry := range entries {
		if !IsAccessEntryActive(entry, now) {
			continue
		}
		if !ValidateAccessFormat(entry.AddressOrCIDR, entry.Kind) {
			s.logger.Warn("skipping malformed access entry",
				slog.String("entry_id", entry.ID.String()),
				slog.String("kind", entry.Kind))
			continue
		}

		if entry.Kind == models.AccessKindBlocked {
			if MatchesAccessEntry(client, entry) {
				return s.decide(false, models.AccessReasonBlockedEntry, entry), nil
			}
			continue
		}
		allowEntries = append(allowEntries, entry)
	}

	if len(allowEntries) == 0 {
		return s.decide(true, models.AccessReasonAllowListEmpty, nil), nil
	}

	for _, entry := range allowEntries {
		if MatchesAccessEntry(client, entry) {
			return s.decide(true, models.AccessReasonAllowEntry, entry), nil
		}
	}

	return s.decide(false, models.AccessReasonNoMatch, nil), nil
}

func (s *AccessListService) decide(allowed bool, reason string, entry *models.AccessEntry) *models.AccessDecision {
	s.metrics.AccessDecision(allowed, reason)

	decision := &models.AccessDecision{Allowed: allowed, Reason: reason}
	if entry != nil {
		id := entry.ID
		decision.MatchedEntry = &id
	}
	return decision
}

// GetStats counts entries by kind and by effective status
func (s *AccessListService) GetStats(ctx context.Context) (*models.AccessStats, error) {
	counts, err := s.repo.CountByKindAndStatus(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to count access entries: %w", err)
	}

	stats := &models.AccessStats{
		ByKind: map[string]int64{
			models.AccessKindSpecific: 0,
			models.AccessKindCIDR:     0,
			models.AccessKindBlocked:  0,
		},
		ByStatus: map[string]int64{
			models.AccessStatusActive:   0,
			models.AccessStatusInactive: 0,
			models.AccessStatusExpired:  0,
		},
	}

	for _, c := range counts {
		stats.Total += c.Count
		stats.ByKind[c.Kind] += c.Count
		stats.ByStatus[c.Status] += c.Count
	}

	return stats, nil
}

// AddAllowedIP adds an entry of the given kind with no expiry
func (s *AccessListService) AddAllowedIP(ctx context.Context, address, kind, description string) (*models.OperationResult, error) {
	return s.AddEntry(ctx, models.AccessEntryInput{
		Address:     address,
		Kind:        kind,
		Description: description,
	})
}

// AddEntry validates and stores a new entry. Malformed input is reported in the
// result and never persisted.
func (s *AccessListService) AddEntry(ctx context.Context, input models.AccessEntryInput) (*models.OperationResult, error) {
	address, err := normalizeAccessAddress(input.Address, input.Kind)
	if err != nil {
		return validationResult(err), nil
	}

	status := input.Status
	if status == "" {
		status = models.AccessStatusActive
	}
	if status != models.AccessStatusActive && status != models.AccessStatusInactive {
		return &models.OperationResult{Success: false, Field: "status", Message: "status must be active or inactive"}, nil
	}

	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.clock.Now()) {
		return &models.OperationResult{Success: false, Field: "expires_at", Message: "expiry must be in the future"}, nil
	}

	entry := &models.AccessEntry{
		AddressOrCIDR: address,
		Kind:          input.Kind,
		Status:        status,
		ExpiresAt:     input.ExpiresAt,
	}
	if input.Description != "" {
		desc := input.Description
		entry.Description = &desc
	}
	if input.CreatedBy != "" {
		by := input.CreatedBy
		entry.CreatedBy = &by
	}

	created, err := s.repo.Create(ctx, entry)
	if err != nil {
		s.logger.Error("failed to create access entry",
			slog.String("address", address),
			slog.String("kind", input.Kind),
			slog.Any("error", err))
		return nil, err
	}

	s.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccessEntryCreated,
		IPAddress: created.AddressOrCIDR,
		Actor:     input.CreatedBy,
		Success:   true,
		Metadata: map[string]string{
			"entry_id": created.ID.String(),
			"kind":     created.Kind,
		},
	})

	return &models.OperationResult{Success: true, Message: "access entry created", Entry: created, Count: 1}, nil
}

// RemoveAllowedIP deletes every entry stored for the address, whatever its kind
func (s *AccessListService) RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error) {
	normalized, err := normalizeLookupAddress(address)
	if err != nil {
		return validationResult(err), nil
	}

	deleted, err := s.repo.DeleteByAddress(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		return &models.OperationResult{Success: false, Field: "address", Message: "no access entry found for address"}, nil
	}

	s.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccessEntryRemoved,
		IPAddress: normalized,
		Success:   true,
	})

	return &models.OperationResult{Success: true, Message: "access entries removed", Count: deleted}, nil
}

// GetEntry returns one entry with its effective status
func (s *AccessListService) GetEntry(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.Status = EffectiveAccessStatus(entry, s.clock.Now())
	return entry, nil
}

// ListEntries returns entries matching the filter with their effective status
func (s *AccessListService) ListEntries(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for _, e := range entries {
		e.Status = EffectiveAccessStatus(e, now)
	}
	return entries, nil
}

// UpdateEntry applies a patch to the mutable fields of an entry
func (s *AccessListService) UpdateEntry(ctx context.Context, id uuid.UUID, patch models.AccessEntryPatch, actor string) (*models.OperationResult, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return &models.OperationResult{Success: false, Message: "access entry not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		switch *patch.Status {
		case models.AccessStatusActive, models.AccessStatusInactive, models.AccessStatusExpired:
			entry.Status = *patch.Status
		default:
			return &models.OperationResult{Success: false, Field: "status", Message: "status must be active, inactive or expired"}, nil
		}
	}
	if patch.Description != nil {
		desc := *patch.Description
		entry.Description = &desc
	}
	if patch.ClearExpiry {
		entry.ExpiresAt = nil
	} else if patch.ExpiresAt != nil {
		entry.ExpiresAt = patch.ExpiresAt
	}

	updated, err := s.repo.Update(ctx, entry)
	if errors.Is(err, models.ErrNotFound) {
		return &models.OperationResult{Success: false, Message: "access entry not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccessEntryUpdated,
		IPAddress: updated.AddressOrCIDR,
		Actor:     actor,
		Success:   true,
		Metadata: map[string]string{
			"entry_id": updated.ID.String(),
			"status":   updated.Status,
		},
	})

	updated.Status = EffectiveAccessStatus(updated, s.clock.Now())
	return &models.OperationResult{Success: true, Message: "access entry updated", Entry: updated, Count: 1}, nil
}

// DeleteEntry removes one entry by id
func (s *AccessListService) DeleteEntry(ctx context.Context, id uuid.UUID, actor string) (*models.OperationResult, error) {
	err := s.repo.DeleteByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return &models.OperationResult{Success: false, Message: "access entry not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccessEntryRemoved,
		Actor:     actor,
		Success:   true,
		Metadata:  map[string]string{"entry_id": id.String()},
	})

	return &models.OperationResult{Success: true, Message: "access entry deleted", Count: 1}, nil
}

func validationResult(err error) *models.OperationResult {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		return &models.OperationResult{Success: false, Field: vErr.Field, Message: vErr.Message}
	}
	return &models.OperationResult{Success: false, Message: err.Error()}
}
