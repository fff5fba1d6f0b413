package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/sentinel/internal/ipnet"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

const (
	maxUserAgentLength = 512
	maxReasonLength    = 255
	maxEmailLength     = 255

	// MaxRetentionDays bounds Cleanup so the cutoff cannot overflow into the future
	MaxRetentionDays = 36500
)

// AttemptLogRepository defines the durable store port for authentication attempts
type AttemptLogRepository interface {
	Append(ctx context.Context, rec *models.AttemptRecord) error
	CountFailedSince(ctx context.Context, key models.AttemptKey, since time.Time) (int64, error)
	LastSuccessAt(ctx context.Context, key models.AttemptKey) (*time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	SummarizeSince(ctx context.Context, since time.Time) (*models.AttemptSummary, error)
	DistinctIPsSince(ctx context.Context, since time.Time) ([]string, error)
	TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]models.IPFailureCount, error)
}

// AttemptLogService records authentication attempts and answers windowed queries over them
type AttemptLogService struct {
	repo        AttemptLogRepository
	clock       Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
}

// NewAttemptLogService creates a new AttemptLogService
func NewAttemptLogService(repo AttemptLogRepository, clock Clock, logger *slog.Logger) *AttemptLogService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AttemptLogService{
		repo:        repo,
		clock:       clock,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
}

// SetMetrics attaches prometheus counters
func (s *AttemptLogService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// NormalizeEmail lowercases and trims an identity and makes it storable
func NormalizeEmail(email string) string {
	return sanitizeText(strings.ToLower(strings.ToValidUTF8(email, "")), maxEmailLength)
}

// normalizeIP returns the canonical text of an address or ErrInvalidIPAddress
func normalizeIP(ip string) (string, error) {
	addr, err := ipnet.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidIPAddress, ip)
	}
	return addr.String(), nil
}

// sanitizeText makes client-supplied text storable in a UTF-8 text column:
// invalid sequences and NUL bytes are dropped and the result is cut to at most
// max bytes on a rune boundary.
func sanitizeText(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

// Record appends one attempt stamped with the current time. The ip is normalized;
// empty email, user agent and reason are stored as null.
func (s *AttemptLogService) Record(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptRecord, error) {
	addr, err := normalizeIP(ip)
	if err != nil {
		return nil, err
	}

	rec := &models.AttemptRecord{
		IPAddress:   addr,
		AttemptedAt: s.clock.Now(),
		Success:     success,
	}
	if e := NormalizeEmail(email); e != "" {
		rec.Email = &e
	}
	if ua := sanitizeText(userAgent, maxUserAgentLength); ua != "" {
		rec.UserAgent = &ua
	}
	if reason != nil {
		if r := sanitizeText(*reason, maxReasonLength); r != "" {
			rec.Reason = &r
		}
	}

	if err := s.repo.Append(ctx, rec); err != nil {
		s.logger.Error("failed to record attempt",
			slog.String("ip_address", addr),
			slog.Bool("success", success),
			slog.Any("error", err))
		return nil, err
	}

	s.metrics.AttemptRecorded(success)
	return rec, nil
}

// CountFailedSince counts failures for key within the trailing window
func (s *AttemptLogService) CountFailedSince(ctx context.Context, key models.AttemptKey, window time.Duration) (int64, error) {
	return s.repo.CountFailedSince(ctx, key, s.clock.Now().Add(-window))
}

// CountFailedAfter counts failures for key with attempted_at >= since
func (s *AttemptLogService) CountFailedAfter(ctx context.Context, key models.AttemptKey, since time.Time) (int64, error) {
	return s.repo.CountFailedSince(ctx, key, since)
}

func (s *AttemptLogService) LastSuccessAt(ctx context.Context, key models.AttemptKey) (*time.Time, error) {
	return s.repo.LastSuccessAt(ctx, key)
}

// Cleanup deletes every record older than retentionDays and returns the number
// deleted. The cutoff is fixed when the call starts, so rows written while the
// purge runs are never touched.
func (s *AttemptLogService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, models.NewValidationError("retention_days", "must be a positive number of days")
	}
	if retentionDays > MaxRetentionDays {
		return 0, models.NewValidationError("retention_days", fmt.Sprintf("must not exceed %d days", MaxRetentionDays))
	}

	cutoff := s.clock.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("attempt log purge failed",
			slog.Int("retention_days", retentionDays),
			slog.Time("cutoff", cutoff),
			slog.Any("error", err))
		return 0, err
	}

	s.metrics.AttemptsPurged(deleted)
	s.auditLogger.LogMaintenance(pkglogger.EventAttemptsPurged, map[string]string{
		"retention_days": strconv.Itoa(retentionDays),
		"cutoff":         cutoff.Format(time.RFC3339),
		"deleted":        strconv.FormatInt(deleted, 10),
	})

	return deleted, nil
}

func (s *AttemptLogService) Summary(ctx context.Context, since time.Time) (*models.AttemptSummary, error) {
	return s.repo.SummarizeSince(ctx, since)
}

func (s *AttemptLogService) DistinctIPsSince(ctx context.Context, since time.Time) ([]string, error) {
	return s.repo.DistinctIPsSince(ctx, since)
}

func (s *AttemptLogService) TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]models.IPFailureCount, error) {
	return s.repo.TopFailingIPs(ctx, since, limit)
}
