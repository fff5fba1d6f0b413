package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// BlockChecker answers whether a client address is currently blocked
type BlockChecker interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
	GetBlockTimeRemaining(ctx context.Context, ip string) (time.Duration, error)
}

// LoginGuard rejects login requests from blocked addresses with 429
func LoginGuard(checker BlockChecker, ipConfig *pkghttp.IPConfig, failClosed bool, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := pkghttp.ExtractClientIP(r, ipConfig)

			blocked, err := checker.IsBlocked(r.Context(), clientIP)
			if err != nil {
				logger.Error("login guard lookup failed",
					slog.String("ip_address", clientIP),
					slog.Bool("fail_closed", failClosed),
					slog.Any("error", err))
				if failClosed {
					pkghttp.WriteServiceUnavailable(w, "login temporarily unavailable")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !blocked {
				next.ServeHTTP(w, r)
				return
			}

			if remaining, err := checker.GetBlockTimeRemaining(r.Context(), clientIP); err == nil {
				pkghttp.SetRetryAfter(w, remaining)
			}

			pkghttp.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "IP bloqueada por intentos fallidos",
			})
		})
	}
}
