package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/BradenHooton/sentinel/internal/cache"
	"github.com/BradenHooton/sentinel/internal/ipnet"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

const (
	blockKeyPrefix   = "block:"
	amnestyKeyPrefix = "unblock:"

	// Postgres stores microseconds; reset points are exclusive
	resetResolution = time.Microsecond

	defaultStatsHours  = 24
	defaultStatsTopIPs = 10

	// MaxStatsHours is the longest reporting window GetBlockingStats accepts
	MaxStatsHours = 2160

	// rederiveTimeout bounds a shared re-derivation detached from its first caller
	rederiveTimeout = 10 * time.Second
)

// Block clear reasons, used for metrics labels and audit records
const (
	clearReasonSuccess = "success"
	clearReasonManual  = "manual"
)

// BlockConfig holds the threshold policy of the block decision engine
type BlockConfig struct {
	MaxAttempts     int
	LockoutWindow   time.Duration
	LockoutDuration time.Duration
	// ExtendLockoutOnFailure restarts the lockout on every failure while blocked
	ExtendLockoutOnFailure bool
	IPWhitelistEnabled     bool
	Whitelist              *ipnet.Set
	StatsTopIPs            int
}

// BlockDecisionService decides whether an ip or identity is blocked after repeated
// failures. The attempt log is the source of truth; the cache only remembers
// blocks that were already derived from it.
type BlockDecisionService struct {
	attempts    *AttemptLogService
	store       cache.Store
	config      BlockConfig
	clock       Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	notifier    BlockNotifier
	group       singleflight.Group
}

// NewBlockDecisionService creates a new BlockDecisionService
func NewBlockDecisionService(attempts *AttemptLogService, store cache.Store, config BlockConfig, clock Clock, logger *slog.Logger) *BlockDecisionService {
	if clock == nil {
		clock = SystemClock{}
	}
	if config.StatsTopIPs <= 0 {
		config.StatsTopIPs = defaultStatsTopIPs
	}

	return &BlockDecisionService{
		attempts:    attempts,
		store:       store,
		config:      config,
		clock:       clock,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
		notifier:    NoopBlockNotifier{},
	}
}

// SetNotifier sets the collaborator told about newly triggered blocks
func (s *BlockDecisionService) SetNotifier(n BlockNotifier) {
	if n == nil {
		n = NoopBlockNotifier{}
	}
	s.notifier = n
}

// SetMetrics attaches prometheus counters
func (s *BlockDecisionService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Config returns the active policy
func (s *BlockDecisionService) Config() BlockConfig {
	return s.config
}

// IsBlocked reports whether the ip is currently blocked. Whitelisted addresses are
// never blocked.
func (s *BlockDecisionService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	addr, err := normalizeIP(ip)
	if err != nil {
		return false, err
	}
	if s.IsIPWhitelisted(addr) {
		return false, nil
	}
	return s.isKeyBlocked(ctx, models.IPKey(addr))
}

// IsEmailBlocked reports whether the identity is currently blocked
func (s *BlockDecisionService) IsEmailBlocked(ctx context.Context, email string) (bool, error) {
	e := NormalizeEmail(email)
	if e == "" {
		return false, nil
	}
	return s.isKeyBlocked(ctx, models.EmailKey(e))
}

// RecordLoginAttempt appends the attempt to the log, then updates block state.
// A success clears the cached blocks of its ip and email. A failure re-evaluates
// both keys and starts a lockout for each key that crosses the threshold.
func (s *BlockDecisionService) RecordLoginAttempt(ctx context.Context, ip, email, userAgent string, success bool, reason *string) (*models.AttemptOutcome, error) {
	rec, err := s.attempts.Record(ctx, ip, email, userAgent, success, reason)
	if err != nil {
		if errors.Is(err, models.ErrInvalidIPAddress) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	keys := []models.AttemptKey{models.IPKey(rec.IPAddress)}
	if rec.Email != nil {
		keys = append(keys, models.EmailKey(*rec.Email))
	}

	outcome := &models.AttemptOutcome{Recorded: true}

	if success {
		for _, key := range keys {
			s.clearBlock(ctx, key, clearReasonSuccess)
		}
		return outcome, nil
	}

	for _, key := range keys {
		if key.Kind == models.KeyKindIP && s.IsIPWhitelisted(key.Value) {
			continue
		}

		blocked, err := s.evaluateFailure(ctx, key)
		if err != nil {
			return outcome, err
		}
		if !blocked {
			continue
		}

		if key.Kind == models.KeyKindIP {
			outcome.IPBlocked = true
		} else {
			outcome.EmailBlocked = true
		}

		if secs := ceilSeconds(s.remaining(ctx, key)); secs > outcome.RetryAfterSeconds {
			outcome.RetryAfterSeconds = secs
		}
	}

	return outcome, nil
}

// UnblockIP clears the block for an ip. Failures recorded before the unblock no
// longer count; a fresh run of failures can block the ip again.
func (s *BlockDecisionService) UnblockIP(ctx context.Context, ip string) (bool, error) {
	addr, err := normalizeIP(ip)
	if err != nil {
		return false, err
	}
	return s.unblock(ctx, models.IPKey(addr))
}

// UnblockEmail clears the block for an identity
func (s *BlockDecisionService) UnblockEmail(ctx context.Context, email string) (bool, error) {
	e := NormalizeEmail(email)
	if e == "" {
		return false, models.NewValidationError("email", "email is required")
	}
	return s.unblock(ctx, models.EmailKey(e))
}

// GetBlockTimeRemaining returns how long the ip stays blocked, or 0
func (s *BlockDecisionService) GetBlockTimeRemaining(ctx context.Context, ip string) (time.Duration, error) {
	addr, err := normalizeIP(ip)
	if err != nil {
		return 0, err
	}
	if s.IsIPWhitelisted(addr) {
		return 0, nil
	}
	return s.timeRemaining(ctx, models.IPKey(addr))
}

// GetEmailBlockTimeRemaining returns how long the identity stays blocked, or 0
func (s *BlockDecisionService) GetEmailBlockTimeRemaining(ctx context.Context, email string) (time.Duration, error) {
	e := NormalizeEmail(email)
	if e == "" {
		return 0, nil
	}
	return s.timeRemaining(ctx, models.EmailKey(e))
}

// IPStatus reports the block state of an ip for API callers
func (s *BlockDecisionService) IPStatus(ctx context.Context, ip string) (*models.BlockStatus, error) {
	addr, err := normalizeIP(ip)
	if err != nil {
		return nil, err
	}

	remaining, err := s.GetBlockTimeRemaining(ctx, addr)
	if err != nil {
		return nil, err
	}

	return &models.BlockStatus{
		Key:              models.IPKey(addr).String(),
		Blocked:          remaining > 0,
		RemainingSeconds: ceilSeconds(remaining),
	}, nil
}

// EmailStatus reports the block state of an identity for API callers. The key is
// masked.
func (s *BlockDecisionService) EmailStatus(ctx context.Context, email string) (*models.BlockStatus, error) {
	e := NormalizeEmail(email)
	if e == "" {
		return nil, models.NewValidationError("email", "email is required")
	}

	remaining, err := s.GetEmailBlockTimeRemaining(ctx, e)
	if err != nil {
		return nil, err
	}

	return &models.BlockStatus{
		Key:              pkglogger.SanitizedKey(models.EmailKey(e).String()),
		Blocked:          remaining > 0,
		RemainingSeconds: ceilSeconds(remaining),
	}, nil
}

// IsIPWhitelisted reports whether the ip is exempt from blocking. Always false
// while the global whitelist is disabled.
func (s *BlockDecisionService) IsIPWhitelisted(ip string) bool {
	if !s.config.IPWhitelistEnabled || s.config.Whitelist.Len() == 0 {
		return false
	}

	addr, err := ipnet.ParseAddr(ip)
	if err != nil {
		return false
	}
	return s.config.Whitelist.Contains(addr)
}

// GetBlockingStats summarizes the attempt log over the trailing hours. blocked_ips
// re-applies the threshold rule to every ip seen in the window without consulting
// the cache.
func (s *BlockDecisionService) GetBlockingStats(ctx context.Context, hours int) (*models.BlockingStats, error) {
	if hours <= 0 {
		hours = defaultStatsHours
	}
	if hours > MaxStatsHours {
		return nil, models.NewValidationError("hours", fmt.Sprintf("must not exceed %d", MaxStatsHours))
	}

	now := s.clock.Now()
	since := now.Add(-time.Duration(hours) * time.Hour)

	summary, err := s.attempts.Summary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	ips, err := s.attempts.DistinctIPsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	var blocked int64
	for _, ip := range ips {
		if s.IsIPWhitelisted(ip) {
			continue
		}
		isBlocked, err := s.derive(ctx, models.IPKey(ip), now, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
		if isBlocked {
			blocked++
		}
	}

	top, err := s.attempts.TopFailingIPs(ctx, since, s.config.StatsTopIPs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	return &models.BlockingStats{
		WindowHours:        hours,
		TotalAttempts:      summary.TotalAttempts,
		FailedAttempts:     summary.FailedAttempts,
		SuccessfulAttempts: summary.SuccessfulAttempts,
		UniqueIPs:          summary.UniqueIPs,
		BlockedIPs:         blocked,
		TopProblematicIPs:  top,
	}, nil
}

// Cleanup purges attempt history older than retentionDays
func (s *BlockDecisionService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return s.attempts.Cleanup(ctx, retentionDays)
}

func (s *BlockDecisionService) isKeyBlocked(ctx context.Context, key models.AttemptKey) (bool, error) {
	if _, hit := s.cachedBlock(ctx, key); hit {
		s.metrics.BlockChecked(string(key.Kind), true, "cache")
		return true, nil
	}

	// Concurrent misses for the same key share one re-derivation, so it must not
	// die with whichever caller started it
	v, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rederiveTimeout)
		defer cancel()

		now := s.clock.Now()
		blocked, err := s.derive(ctx, key, now, true)
		if err != nil {
			return false, err
		}
		if blocked {
			s.storeBlock(ctx, key, now.Add(s.config.LockoutDuration))
		}
		return blocked, nil
	})
	if err != nil {
		s.logger.Error("block re-derivation failed",
			slog.String("key", pkglogger.SanitizedKey(key.String())),
			slog.Any("error", err))
		return false, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	blocked := v.(bool)
	s.metrics.BlockChecked(string(key.Kind), blocked, "log")
	return blocked, nil
}

// evaluateFailure runs after a failed attempt was appended. A key already
// cached as blocked keeps its lockout unless ExtendLockoutOnFailure is set.
func (s *BlockDecisionService) evaluateFailure(ctx context.Context, key models.AttemptKey) (bool, error) {
	now := s.clock.Now()

	if _, hit := s.cachedBlock(ctx, key); hit {
		if s.config.ExtendLockoutOnFailure {
			s.storeBlock(ctx, key, now.Add(s.config.LockoutDuration))
		}
		return true, nil
	}

	blocked, err := s.derive(ctx, key, now, true)
	if err != nil {
		return false, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	if !blocked {
		return false, nil
	}

	until := now.Add(s.config.LockoutDuration)
	s.storeBlock(ctx, key, until)
	s.onBlockTriggered(ctx, key, until)

	return true, nil
}

// derive applies the threshold rule to the attempt log. Failures count from the
// start of the lockout window, or from just after the key's most recent success
// or manual unblock when that is later.
func (s *BlockDecisionService) derive(ctx context.Context, key models.AttemptKey, now time.Time, honorAmnesty bool) (bool, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveLookup(string(key.Kind), time.Since(start).Seconds())
	}()

	since := now.Add(-s.config.LockoutWindow)

	lastSuccess, err := s.attempts.LastSuccessAt(ctx, key)
	if err != nil {
		return false, err
	}
	if lastSuccess != nil {
		if after := lastSuccess.Add(resetResolution); after.After(since) {
			since = after
		}
	}

	if honorAmnesty {
		if amnesty, ok := s.amnestyPoint(ctx, key); ok {
			if after := amnesty.Add(resetResolution); after.After(since) {
				since = after
			}
		}
	}

	count, err := s.attempts.CountFailedAfter(ctx, key, since)
	if err != nil {
		return false, err
	}

	return count >= int64(s.config.MaxAttempts), nil
}

func (s *BlockDecisionService) timeRemaining(ctx context.Context, key models.AttemptKey) (time.Duration, error) {
	if until, hit := s.cachedBlock(ctx, key); hit {
		return until.Sub(s.clock.Now()), nil
	}

	blocked, err := s.isKeyBlocked(ctx, key)
	if err != nil {
		return 0, err
	}
	if !blocked {
		return 0, nil
	}

	// Either just cached with a full lockout, or the cache is down and the full
	// lockout is the upper bound
	if until, hit := s.cachedBlock(ctx, key); hit {
		return until.Sub(s.clock.Now()), nil
	}
	return s.config.LockoutDuration, nil
}

// remaining is timeRemaining for keys already known to be blocked
func (s *BlockDecisionService) remaining(ctx context.Context, key models.AttemptKey) time.Duration {
	if until, hit := s.cachedBlock(ctx, key); hit {
		return until.Sub(s.clock.Now())
	}
	return s.config.LockoutDuration
}

func (s *BlockDecisionService) unblock(ctx context.Context, key models.AttemptKey) (bool, error) {
	now := s.clock.Now()

	// The amnesty point goes in first so a concurrent miss re-derives past it
	if err := s.store.Put(ctx, s.cacheKey(amnestyKeyPrefix, key), now.Format(time.RFC3339Nano), s.config.LockoutWindow); err != nil {
		s.metrics.CacheError("put")
		return false, fmt.Errorf("failed to record unblock: %w", err)
	}

	if err := s.store.Forget(ctx, s.cacheKey(blockKeyPrefix, key)); err != nil {
		s.metrics.CacheError("forget")
		return false, fmt.Errorf("failed to clear block: %w", err)
	}

	s.metrics.BlockCleared(string(key.Kind), clearReasonManual)
	s.auditLogger.LogBlockEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventBlockManualUnblock,
		Key:       pkglogger.SanitizedKey(key.String()),
		Success:   true,
	})

	return true, nil
}

// clearBlock forgets the cached block for key. The durable reset point is the
// success row itself, so a failed forget is logged and not returned.
func (s *BlockDecisionService) clearBlock(ctx context.Context, key models.AttemptKey, reason string) {
	_, wasBlocked := s.cachedBlock(ctx, key)

	if err := s.store.Forget(ctx, s.cacheKey(blockKeyPrefix, key)); err != nil {
		s.metrics.CacheError("forget")
		s.logger.Warn("failed to clear block cache entry",
			slog.String("key", pkglogger.SanitizedKey(key.String())),
			slog.Any("error", err))
		return
	}

	if !wasBlocked {
		return
	}

	s.metrics.BlockCleared(string(key.Kind), reason)
	s.auditLogger.LogBlockEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventBlockCleared,
		Key:       pkglogger.SanitizedKey(key.String()),
		Success:   true,
		Reason:    reason,
	})
}

func (s *BlockDecisionService) onBlockTriggered(ctx context.Context, key models.AttemptKey, until time.Time) {
	s.metrics.BlockTriggered(string(key.Kind))

	event := pkglogger.AuditEvent{
		EventType: pkglogger.EventBlockTriggered,
		Key:       pkglogger.SanitizedKey(key.String()),
		Success:   false,
		Reason:    "failed attempts reached threshold",
		Metadata: map[string]string{
			"max_attempts":  strconv.Itoa(s.config.MaxAttempts),
			"blocked_until": until.Format(time.RFC3339),
		},
	}
	if key.Kind == models.KeyKindIP {
		event.IPAddress = key.Value
	}
	s.auditLogger.LogBlockEvent(event)

	notice := BlockNotice{
		Key:            key.String(),
		FailedAttempts: int64(s.config.MaxAttempts),
		Window:         s.config.LockoutWindow,
		BlockedUntil:   until,
	}
	if err := s.notifier.NotifyBlocked(ctx, notice); err != nil {
		s.logger.Warn("block notification failed",
			slog.String("key", pkglogger.SanitizedKey(key.String())),
			slog.Any("error", err))
	}
}

// cachedBlock reads the block-until instant for key. A cache failure is
// reported as a miss so the caller falls back to the attempt log.
func (s *BlockDecisionService) cachedBlock(ctx context.Context, key models.AttemptKey) (time.Time, bool) {
	raw, err := s.store.Get(ctx, s.cacheKey(blockKeyPrefix, key))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.metrics.CacheError("get")
			s.logger.Warn("block cache unavailable, falling back to attempt log",
				slog.String("key", pkglogger.SanitizedKey(key.String())),
				slog.Any("error", err))
		}
		return time.Time{}, false
	}

	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn("discarding malformed block cache entry",
			slog.String("key", pkglogger.SanitizedKey(key.String())))
		_ = s.store.Forget(ctx, s.cacheKey(blockKeyPrefix, key))
		return time.Time{}, false
	}

	if !until.After(s.clock.Now()) {
		return time.Time{}, false
	}
	return until, true
}

func (s *BlockDecisionService) storeBlock(ctx context.Context, key models.AttemptKey, until time.Time) {
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}

	if err := s.store.Put(ctx, s.cacheKey(blockKeyPrefix, key), until.Format(time.RFC3339Nano), ttl); err != nil {
		s.metrics.CacheError("put")
		s.logger.Warn("failed to cache block",
			slog.String("key", pkglogger.SanitizedKey(key.String())),
			slog.Any("error", err))
	}
}

func (s *BlockDecisionService) amnestyPoint(ctx context.Context, key models.AttemptKey) (time.Time, bool) {
	raw, err := s.store.Get(ctx, s.cacheKey(amnestyKeyPrefix, key))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.metrics.CacheError("get")
		}
		return time.Time{}, false
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// cacheKey builds the store key. Identities are stored as a blake2b digest.
func (s *BlockDecisionService) cacheKey(prefix string, key models.AttemptKey) string {
	if key.Kind == models.KeyKindEmail {
		sum := blake2b.Sum256([]byte(key.Value))
		return prefix + string(key.Kind) + ":" + hex.EncodeToString(sum[:16])
	}
	return prefix + key.String()
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
