package models

import "time"

// AttemptRecord is one authentication attempt. Rows are append-only and are only
// removed by the retention purge.
type AttemptRecord struct {
	ID          string    `db:"id" json:"id"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	Email       *string   `db:"email" json:"email,omitempty"`
	UserAgent   *string   `db:"user_agent" json:"user_agent,omitempty"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
	Success     bool      `db:"success" json:"success"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
}

// KeyKind identifies the dimension an attempt key counts on
type KeyKind string

const (
	KeyKindIP    KeyKind = "ip"
	KeyKindEmail KeyKind = "email"
)

// AttemptKey addresses the failure counter of one IP or one identity.
type AttemptKey struct {
	Kind  KeyKind
	Value string
}

// IPKey builds the key for a normalized IP address
func IPKey(ip string) AttemptKey {
	return AttemptKey{Kind: KeyKindIP, Value: ip}
}

// EmailKey builds the key for a normalized email address
func EmailKey(email string) AttemptKey {
	return AttemptKey{Kind: KeyKindEmail, Value: email}
}

// String renders the key as "ip:<addr>" or "email:<value>".
func (k AttemptKey) String() string {
	return string(k.Kind) + ":" + k.Value
}

// AttemptSummary aggregates the attempt log over a window
type AttemptSummary struct {
	TotalAttempts      int64
	FailedAttempts     int64
	SuccessfulAttempts int64
	UniqueIPs          int64
}

// IPFailureCount is one row of the problematic IP ranking
type IPFailureCount struct {
	IPAddress      string `json:"ip_address"`
	FailedAttempts int64  `json:"failed_attempts"`
}

// BlockingStats is the blocking report over a trailing window of hours.
type BlockingStats struct {
	WindowHours        int              `json:"window_hours"`
	TotalAttempts      int64            `json:"total_attempts"`
	FailedAttempts     int64            `json:"failed_attempts"`
	SuccessfulAttempts int64            `json:"successful_attempts"`
	UniqueIPs          int64            `json:"unique_ips"`
	BlockedIPs         int64            `json:"blocked_ips"`
	TopProblematicIPs  []IPFailureCount `json:"top_problematic_ips"`
}

// BlockStatus is the block state of a single key as reported to callers
type BlockStatus struct {
	Key              string `json:"key"`
	Blocked          bool   `json:"blocked"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// AttemptOutcome reports the block state of the keys touched by a recorded attempt
type AttemptOutcome struct {
	Recorded          bool  `json:"recorded"`
	IPBlocked         bool  `json:"ip_blocked"`
	EmailBlocked      bool  `json:"email_blocked"`
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}
