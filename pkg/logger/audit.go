package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the guard
const (
	EventBlockTriggered     = "block_triggered"
	EventBlockCleared       = "block_cleared"
	EventBlockManualUnblock = "block_manual_unblock"
	EventAccessDenied       = "access_denied"
	EventAccessEntryCreated = "access_entry_created"
	EventAccessEntryUpdated = "access_entry_updated"
	EventAccessEntryRemoved = "access_entry_removed"
	EventAccessGateToggled  = "access_gate_toggled"
	EventAttemptsPurged     = "attempts_purged"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType string
	Key       string
	IPAddress string
	Actor     string
	Success   bool
	Reason    string
	Metadata  map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogBlockEvent logs block lifecycle transitions for an ip or identity key.
// Identity keys must already be masked by the caller.
func (al *AuditLogger) LogBlockEvent(event AuditEvent) {
	al.log("block", event)
}

// LogAccessEvent logs access list decisions and mutations
func (al *AuditLogger) LogAccessEvent(event AuditEvent) {
	al.log("access", event)
}

// LogMaintenance logs janitor and other administrative housekeeping
func (al *AuditLogger) LogMaintenance(eventType string, metadata map[string]string) {
	al.log("maintenance", AuditEvent{EventType: eventType, Success: true, Metadata: metadata})
}

func (al *AuditLogger) log(auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Actor != "" {
		attrs = append(attrs, slog.String("actor", event.Actor))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
