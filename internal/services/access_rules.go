package services

import (
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/ipnet"
	"github.com/BradenHooton/sentinel/internal/models"
)

// ValidateAccessFormat reports whether value is syntactically valid for kind:
// a single address for specific and blocked entries, network/prefix notation
// for cidr entries.
func ValidateAccessFormat(value, kind string) bool {
	_, err := normalizeAccessAddress(value, kind)
	return err == nil
}

// normalizeAccessAddress returns the canonical stored form of value, with host
// bits of a cidr masked off
func normalizeAccessAddress(value, kind string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", models.NewValidationError("address", "address is required")
	}
	if len(value) > 45 {
		return "", models.NewValidationError("address", "address must be at most 45 characters")
	}

	switch kind {
	case models.AccessKindSpecific, models.AccessKindBlocked:
		addr, err := ipnet.ParseAddr(value)
		if err != nil {
			return "", models.NewValidationError("address", "must be a valid IPv4 or IPv6 address")
		}
		return addr.String(), nil
	case models.AccessKindCIDR:
		n, err := ipnet.ParseNetwork(value)
		if err != nil {
			return "", models.NewValidationError("address", "must be a valid network in CIDR notation (prefix up to 32 for IPv4, 128 for IPv6)")
		}
		return n.String(), nil
	default:
		return "", models.NewValidationError("kind", "must be one of specific, cidr, blocked")
	}
}

// normalizeLookupAddress normalizes an address or network without knowing its kind
func normalizeLookupAddress(value string) (string, error) {
	if ipnet.IsNetworkNotation(value) {
		return normalizeAccessAddress(value, models.AccessKindCIDR)
	}
	return normalizeAccessAddress(value, models.AccessKindSpecific)
}

// MatchesAccessEntry reports whether the client address is covered by the entry.
// Specific and blocked entries compare normalized addresses; cidr entries test
// containment. Addresses never match across families.
func MatchesAccessEntry(client ipnet.Addr, entry *models.AccessEntry) bool {
	if !client.IsValid() || entry == nil {
		return false
	}

	switch entry.Kind {
	case models.AccessKindSpecific, models.AccessKindBlocked:
		addr, err := ipnet.ParseAddr(entry.AddressOrCIDR)
		if err != nil {
			return false
		}
		return addr.Equal(client)
	case models.AccessKindCIDR:
		n, err := ipnet.ParseNetwork(entry.AddressOrCIDR)
		if err != nil {
			return false
		}
		return n.Contains(client)
	default:
		return false
	}
}

// IsAccessEntryActive reports whether the entry takes part in matching at now:
// status active and not past its expiry
func IsAccessEntryActive(entry *models.AccessEntry, now time.Time) bool {
	if entry == nil || entry.Status != models.AccessStatusActive {
		return false
	}
	return entry.ExpiresAt == nil || entry.ExpiresAt.After(now)
}

// EffectiveAccessStatus is the status reported to administrators; active entries
// past their expiry read as expired
func EffectiveAccessStatus(entry *models.AccessEntry, now time.Time) string {
	if entry.Status == models.AccessStatusActive && entry.ExpiresAt != nil && !entry.ExpiresAt.After(now) {
		return models.AccessStatusExpired
	}
	return entry.Status
}
