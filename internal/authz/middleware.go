// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package authz

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
	"github.com/tomtom215/reelgate/internal/models"
)

// IdentityFunc returns the authenticated identity stored in ctx.
type IdentityFunc func(ctx context.Context) (models.Identity, bool)

// Middleware applies the route policy to requests that already passed
// authentication.
type Middleware struct {
	enforcer *Enforcer
	identity IdentityFunc
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer, identity IdentityFunc) *Middleware {
	return &Middleware{enforcer: enforcer, identity: identity}
}

// AuthorizeRequest derives the action from the HTTP method and checks the
// request path against the identity's role.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.identity(r.Context())
		if !ok {
			writeDenied(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}

		allowed, err := m.enforcer.Authorize(id.Role, r.Method, r.URL.Path)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			writeDenied(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			return
		}
		if !allowed {
			metrics.RecordDenial("policy", http.StatusForbidden)
			logging.Ctx(r.Context()).Warn().
				Str("username", logging.SanitizeUsername(id.Username)).
				Str("role", id.Role.String()).
				Str("path", r.URL.Path).
				Msg("Route policy denied request")
			writeDenied(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeDenied(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: &models.APIError{Code: code, Message: message},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Error encoding authorization response")
	}
}
