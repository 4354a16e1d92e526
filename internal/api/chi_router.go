// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/middleware"
	"github.com/tomtom215/reelgate/internal/models"
)

// RouterConfig configures the HTTP surface around a Handler.
type RouterConfig struct {
	// TrustedProxies lists the IPs or CIDRs whose forwarding headers are
	// believed. Empty means the TCP peer is always the client.
	TrustedProxies []string

	// Middleware configures CORS and the general rate limit. Nil uses defaults.
	Middleware *ChiMiddlewareConfig

	// Metrics serves /metrics. Nil uses the default Prometheus registry.
	Metrics http.Handler
}

// Router binds the handler to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	policy        func(http.Handler) http.Handler
	trusted       []string
	metrics       http.Handler
}

// NewRouter creates a router for h.
func NewRouter(h *Handler, cfg RouterConfig) *Router {
	policy := func(next http.Handler) http.Handler { return next }
	if h.enforcer != nil {
		policy = authz.NewMiddleware(h.enforcer, auth.IdentityFrom).AuthorizeRequest
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	return &Router{
		handler:       h,
		chiMiddleware: NewChiMiddleware(cfg.Middleware),
		policy:        policy,
		trusted:       cfg.TrustedProxies,
		metrics:       cfg.Metrics,
	}
}

// SetupChi configures every route and returns the root handler.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	guard := h.guard

	r := chi.NewRouter()

	// Global middleware, outermost first. CORS is global so OPTIONS
	// preflights are answered before any guard runs.
	r.Use(middleware.RequestID)
	r.Use(middleware.TrustedRealIP(router.trusted))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Handle("/metrics", router.metrics)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", h.Live)
		r.Get("/ready", h.Ready)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitAuth))

		r.Group(func(r chi.Router) {
			if h.loginRL != nil {
				r.Use(h.loginRL.Limit)
			}
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
		})
		r.Post("/refresh", h.Refresh)
		r.With(guard.Authenticate).Post("/logout", h.Logout)
		r.With(guard.RequireSigned).Get("/check", h.Check)

		r.Group(func(r chi.Router) {
			r.Use(guard.RequireUser)
			r.Get("/me", h.Me)
			r.Post("/password", h.ChangePassword)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.RateLimit())

		r.With(guard.RequireUser, router.policy).Get("/permissions", h.Permissions)

		r.Route("/admin", func(r chi.Router) {
			r.Use(guard.RequireAdmin)
			r.Use(router.policy)
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitAdmin))

			r.Get("/users", h.ListUsers)
			r.Post("/users", h.CreateUser)
			r.Put("/users/{username}", h.UpdateUser)
			r.Delete("/users/{username}", h.DeleteUser)
			r.Post("/users/{username}/ban", h.BanUser)
			r.Post("/users/{username}/unban", h.UnbanUser)

			r.Get("/tags", h.GetTags)
			r.Put("/tags", h.PutTags)

			r.Get("/registrations", h.ListRegistrations)
			r.Post("/registrations/{username}/approve", h.ApproveRegistration)
			r.Post("/registrations/{username}/reject", h.RejectRegistration)

			r.Post("/config/validate", h.ValidateConfig)

			r.Get("/tvbox", h.GetTVBox)
			r.Put("/tvbox", h.PutTVBox)
			r.Post("/tvbox/ratelimit/reset", h.ResetRateLimit)
			r.Delete("/tvbox/devices/{username}", h.ClearDevices)
			r.Delete("/tvbox/devices/{username}/{deviceID}", h.RemoveDevice)
		})

		r.Route("/owner", func(r chi.Router) {
			r.Use(guard.RequireOwner)
			r.Use(router.policy)

			r.Post("/migrate", h.Migrate)
			r.Put("/site", h.UpdateSite)
			r.Put("/sources", h.PutSources)
			r.Put("/roles/{username}", h.SetRole)
		})
	})

	// Box-client protocol. The guard applies the per-account limit; the
	// httprate ceiling only bounds anonymous floods per IP.
	r.Route("/tvbox", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitBox))
		r.With(h.boxes.Middleware).Get("/config", h.BoxConfig)
		r.Post("/devices/rebind", h.Rebind)
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondStatus(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondStatus(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// respondStatus answers routing failures, which sit outside the auth
// error taxonomy.
func respondStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: &models.APIError{Code: code, Message: message},
	})
}
