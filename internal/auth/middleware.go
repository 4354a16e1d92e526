// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
	"github.com/tomtom215/reelgate/internal/models"
)

type contextKey string

const (
	identityContextKey   contextKey = "identity"
	signedUserContextKey contextKey = "signed-user"
)

// Cookie names of the session transport.
const (
	AccessCookie    = "access_token"
	RefreshCookie   = "refresh_token"
	SignatureCookie = "auth_sig"

	// RefreshCookiePath scopes the refresh token to the auth endpoints.
	RefreshCookiePath = "/api/v1/auth"
)

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id models.Identity) context.Context {
	ctx = logging.ContextWithUsername(ctx, id.Username)
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFrom returns the identity injected by the Guard.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(models.Identity)
	return id, ok
}

// SignedUserFrom returns the username vouched for by RequireSigned.
func SignedUserFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(signedUserContextKey).(string)
	return u, ok
}

// Guard gates handlers on the session credentials of a request.
type Guard struct {
	manager       *Manager
	secureCookies bool
}

// NewGuard creates a guard. secureCookies marks every session cookie Secure.
func NewGuard(manager *Manager, secureCookies bool) *Guard {
	return &Guard{manager: manager, secureCookies: secureCookies}
}

// CredentialsFromRequest extracts the access token from the Authorization
// header, falling back to the access cookie, plus the signature cookie.
func CredentialsFromRequest(r *http.Request) Credentials {
	var cred Credentials
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			cred.AccessToken = strings.TrimSpace(token)
		}
	}
	if cred.AccessToken == "" {
		if c, err := r.Cookie(AccessCookie); err == nil {
			cred.AccessToken = c.Value
		}
	}
	if c, err := r.Cookie(SignatureCookie); err == nil {
		cred.Signature = c.Value
	}
	return cred
}

// RefreshTokenFromRequest returns the refresh cookie value, if any.
func RefreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate injects the identity when the request carries valid
// credentials and continues either way.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := CredentialsFromRequest(r)
		if cred.AccessToken != "" {
			if id, err := g.manager.Authenticate(r.Context(), cred); err == nil {
				r = r.WithContext(ContextWithIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits requests whose identity satisfies minimum. Missing or
// invalid credentials answer 401, a lower role 403; next is not invoked.
func (g *Guard) RequireRole(minimum models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.manager.Authenticate(r.Context(), CredentialsFromRequest(r))
			if err != nil {
				metrics.RecordDenial(minimum.String(), StatusCode(err))
				WriteError(w, r, err)
				return
			}
			if !id.Role.Satisfies(minimum) {
				metrics.RecordDenial(minimum.String(), http.StatusForbidden)
				logging.Ctx(r.Context()).Debug().
					Str("username", logging.SanitizeUsername(id.Username)).
					Str("role", id.Role.String()).
					Str("required", minimum.String()).
					Msg("Role too low for route")
				WriteError(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireUser admits any authenticated account.
func (g *Guard) RequireUser(next http.Handler) http.Handler {
	return g.RequireRole(models.RoleUser)(next)
}

// RequireAdmin admits admins and the owner.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.RequireRole(models.RoleAdmin)(next)
}

// RequireOwner admits only the owner.
func (g *Guard) RequireOwner(next http.Handler) http.Handler {
	return g.RequireRole(models.RoleOwner)(next)
}

// RequireSigned checks only the stateless signature credential. It proves
// the username was vouched for by the secret holder, not that the session is
// current, so it must not guard authorization decisions.
func (g *Guard) RequireSigned(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SignatureCookie)
		if err != nil {
			WriteError(w, r, ErrUnauthenticated)
			return
		}
		username, sig, ok := ParseSignatureValue(c.Value)
		valid := ok && g.manager.Codec().VerifySignature(username, sig)
		metrics.RecordTokenVerification("signature", valid)
		if !valid {
			WriteError(w, r, ErrInvalidToken)
			return
		}
		ctx := context.WithValue(r.Context(), signedUserContextKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookies writes the three session cookies of res.
func (g *Guard) SetSessionCookies(w http.ResponseWriter, res *SessionResult) {
	if res == nil || res.Tokens == nil {
		return
	}
	now := time.Now()
	http.SetCookie(w, g.cookie(AccessCookie, res.Tokens.AccessToken, "/", res.Tokens.AccessExpiresAt.Sub(now)))
	if res.Tokens.RefreshToken != "" {
		http.SetCookie(w, g.cookie(RefreshCookie, res.Tokens.RefreshToken, RefreshCookiePath, res.Tokens.RefreshExpiresAt.Sub(now)))
	}
	if res.Signature != "" {
		http.SetCookie(w, g.cookie(SignatureCookie, res.Signature, "/", g.manager.Codec().RefreshTTL()))
	}
}

// ClearSessionCookies expires every session cookie.
func (g *Guard) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, g.cookie(AccessCookie, "", "/", -1))
	http.SetCookie(w, g.cookie(RefreshCookie, "", RefreshCookiePath, -1))
	http.SetCookie(w, g.cookie(SignatureCookie, "", "/", -1))
}

func (g *Guard) cookie(name, value, path string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   g.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	return c
}

// WriteError answers err in the JSON envelope. Internal errors are logged
// with their cause and shown to the client only as a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Str("error", logging.SanitizeError(err.Error())).Msg("Request failed")
	}
	resp := models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: &models.APIError{Code: ErrorCode(err), Message: PublicMessage(err)},
	}
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="reelgate"`)
	}
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		logging.Error().Err(encErr).Msg("Error encoding error response")
	}
}
