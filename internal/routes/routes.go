package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Attempts *handlers.AttemptsHandler
	Blocking *handlers.BlockingAdminHandler
	Access   *handlers.AccessAdminHandler
}

// RegisterRoutes registers the service and admin APIs
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	ipConfig *pkghttp.IPConfig,
) {
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		// Login front-ends and operators
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleService, models.RoleAdmin))
			r.Use(middleware.RateLimitBySubject(middleware.DefaultServiceRateLimit(), ipConfig))

			r.Post("/v1/attempts", h.Attempts.Record)
			r.Get("/v1/blocks/ip/{ip}", h.Attempts.GetIPStatus)
			r.Get("/v1/blocks/email/{email}", h.Attempts.GetEmailStatus)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Use(middleware.RateLimitBySubject(middleware.DefaultAdminRateLimit(), ipConfig))

			r.Route("/admin/access-entries", func(r chi.Router) {
				r.Get("/", h.Access.ListEntries)
				r.Post("/", h.Access.CreateEntry)
				r.Delete("/", h.Access.RemoveByAddress)
				r.Get("/{id}", h.Access.GetEntry)
				r.Patch("/{id}", h.Access.UpdateEntry)
				r.Delete("/{id}", h.Access.DeleteEntry)
			})

			r.Get("/admin/access/stats", h.Access.GetStats)
			r.Get("/admin/access/check", h.Access.Check)
			r.Put("/admin/access/toggle", h.Access.Toggle)

			r.Get("/admin/blocking/stats", h.Blocking.GetStats)
			r.Delete("/admin/blocking/ip/{ip}", h.Blocking.UnblockIP)
			r.Delete("/admin/blocking/email/{email}", h.Blocking.UnblockEmail)
			r.Post("/admin/blocking/cleanup", h.Blocking.Cleanup)
		})
	})
}
