package models

import (
	"time"

	"github.com/google/uuid"
)

// Access entry kinds
const (
	AccessKindSpecific = "specific"
	AccessKindCIDR     = "cidr"
	AccessKindBlocked  = "blocked"
)

// Access entry statuses
const (
	AccessStatusActive   = "active"
	AccessStatusInactive = "inactive"
	AccessStatusExpired  = "expired"
)

// AccessEntry is an administrator-defined network rule evaluated by the access gate.
type AccessEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AddressOrCIDR string     `db:"address_or_cidr" json:"address_or_cidr"`
	Kind          string     `db:"kind" json:"kind"`
	Status        string     `db:"status" json:"status"`
	Description   *string    `db:"description" json:"description,omitempty"`
	CreatedBy     *string    `db:"created_by" json:"created_by,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAllowKind reports whether the entry grants access (specific or cidr)
func (e *AccessEntry) IsAllowKind() bool {
	return e.Kind == AccessKindSpecific || e.Kind == AccessKindCIDR
}

// AccessEntryFilter narrows administrative listings. Empty fields match everything.
type AccessEntryFilter struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}

// AccessEntryCount is a stored (kind, status) bucket
type AccessEntryCount struct {
	Kind   string
	Status string
	Count  int64
}

// AccessStats counts entries by kind and by effective status.
type AccessStats struct {
	Total    int64            `json:"total"`
	ByKind   map[string]int64 `json:"by_kind"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Access decision reasons
const (
	AccessReasonBlockedEntry   = "blocked_entry"
	AccessReasonAllowListEmpty = "allow_list_empty"
	AccessReasonAllowEntry     = "allow_entry"
	AccessReasonNoMatch        = "no_match"
	AccessReasonGateDisabled   = "gate_disabled"
)

// AccessDecision is the outcome of resolving a client address against the access list
type AccessDecision struct {
	Allowed      bool       `json:"allowed"`
	Reason       string     `json:"reason"`
	MatchedEntry *uuid.UUID `json:"matched_entry,omitempty"`
}

// OperationResult is returned by administrative mutations for expected outcomes
// such as rejected input or a missing entry. Infrastructure failures are errors.
type OperationResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Field   string       `json:"field,omitempty"`
	Entry   *AccessEntry `json:"entry,omitempty"`
	Count   int64        `json:"count,omitempty"`
}

// AccessEntryInput carries a new entry from administrative tooling
type AccessEntryInput struct {
	Address     string     `json:"address" validate:"required,max=45"`
	Kind        string     `json:"kind" validate:"required,oneof=specific cidr blocked"`
	Description string     `json:"description" validate:"max=500"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   string     `json:"-"`
}

// AccessEntryPatch updates the mutable fields of an entry. Nil fields are left as they are.
type AccessEntryPatch struct {
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=active inactive expired"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClearExpiry bool       `json:"clear_expiry,omitempty"`
}
