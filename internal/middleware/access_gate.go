package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

// AccessResolver resolves client addresses against the access list and mutates it
type AccessResolver interface {
	ResolveAccess(ctx context.Context, clientIP string) (*models.AccessDecision, error)
	AddAllowedIP(ctx context.Context, address, kind, description string) (*models.OperationResult, error)
	RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error)
}

// AccessGateConfig holds the network access gate settings
type AccessGateConfig struct {
	Enabled     bool
	BypassPaths []string
	FailClosed  bool
	IPConfig    *pkghttp.IPConfig
}

// AccessGate admits or rejects every inbound request by client address
type AccessGate struct {
	resolver    AccessResolver
	enabled     atomic.Bool
	bypassPaths []string
	failClosed  bool
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAccessGate creates a new AccessGate
func NewAccessGate(resolver AccessResolver, config AccessGateConfig, logger *slog.Logger) *AccessGate {
	g := &AccessGate{
		resolver:    resolver,
		bypassPaths: config.BypassPaths,
		failClosed:  config.FailClosed,
		ipConfig:    config.IPConfig,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
	g.enabled.Store(config.Enabled)
	return g
}

// Handler wraps next with the gate
func (g *AccessGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.IsEnabled() || g.isBypassed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := pkghttp.ExtractClientIP(r, g.ipConfig)

		decision, err := g.CheckIPAccess(r.Context(), clientIP)
		if err != nil {
			g.logger.Error("access gate lookup failed",
				slog.String("ip_address", clientIP),
				slog.Bool("fail_closed", g.failClosed),
				slog.Any("error", err))
			if g.failClosed {
				pkghttp.WriteServiceUnavailable(w, "access control temporarily unavailable")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			metadata := map[string]string{"path": r.URL.Path}
			if decision.MatchedEntry != nil {
				metadata["entry_id"] = decision.MatchedEntry.String()
			}
			g.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
				EventType: pkglogger.EventAccessDenied,
				IPAddress: clientIP,
				Success:   false,
				Reason:    decision.Reason,
				Metadata:  metadata,
			})
			writeAccessDenied(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CheckIPAccess resolves ip without an HTTP request. With the gate switched off
// every address is allowed.
func (g *AccessGate) CheckIPAccess(ctx context.Context, ip string) (*models.AccessDecision, error) {
	if !g.IsEnabled() {
		return &models.AccessDecision{Allowed: true, Reason: models.AccessReasonGateDisabled}, nil
	}
	return g.resolver.ResolveAccess(ctx, ip)
}

// AddAllowedIP adds an allow or blocked entry with no expiry
func (g *AccessGate) AddAllowedIP(ctx context.Context, address, kind, description string) (*models.OperationResult, error) {
	return g.resolver.AddAllowedIP(ctx, address, kind, description)
}

// RemoveAllowedIP removes every entry stored for address
func (g *AccessGate) RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error) {
	return g.resolver.RemoveAllowedIP(ctx, address)
}

// SetEnabled flips the global toggle at runtime
func (g *AccessGate) SetEnabled(enabled bool, actor string) {
	previous := g.enabled.Swap(enabled)
	if previous == enabled {
		return
	}

	g.auditLogger.LogAccessEvent(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccessGateToggled,
		Actor:     actor,
		Success:   true,
		Metadata:  map[string]string{"enabled": strconv.FormatBool(enabled)},
	})
}

func (g *AccessGate) IsEnabled() bool {
	return g.enabled.Load()
}

// isBypassed matches a bypass path exactly or as a parent segment
func (g *AccessGate) isBypassed(path string) bool {
	for _, p := range g.bypassPaths {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

const accessDeniedPage = `<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>Acceso denegado</title></head>
<body>
<h1>Acceso denegado</h1>
<p>Su dirección IP no tiene permiso para acceder a este recurso.</p>
</body>
</html>
`

func writeAccessDenied(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		pkghttp.WriteJSON(w, http.StatusForbidden, map[string]string{
			"error": "Acceso denegado",
			"code":  "IP_ACCESS_DENIED",
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(accessDeniedPage))
}

// wantsJSON reports whether the caller is an API client rather than a browser
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	for _, prefix := range []string{"/v1/", "/api/", "/admin/"} {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}
