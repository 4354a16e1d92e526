// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package tvbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/store"
)

// Access describes a request admitted by the guard.
type Access struct {
	// Username is empty when token auth is disabled and no token was sent.
	Username string
	Device   Device
	ClientIP string
	// Bound is set when this request bound the device.
	Bound bool
	Rate  Result
}

type accessContextKey struct{}

// AccessFrom returns the access injected by Guard.Middleware.
func AccessFrom(ctx context.Context) (Access, bool) {
	a, ok := ctx.Value(accessContextKey{}).(Access)
	return a, ok
}

// Guard runs the box-client admission pipeline.
type Guard struct {
	store    store.Store
	limiter  Limiter
	security *logging.SecurityLogger
	now      func() time.Time
}

// NewGuard creates a guard over the configuration store and a limiter.
func NewGuard(st store.Store, limiter Limiter) *Guard {
	return &Guard{
		store:    st,
		limiter:  limiter,
		security: logging.NewSecurityLogger(),
		now:      time.Now,
	}
}

// TokenFromRequest returns the account token from the X-TVBox-Token header
// or the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(HeaderToken)); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryToken))
}

// Check admits or rejects r. Rejections are auth errors carrying the
// status the protocol answers with; limiter and store failures reject.
func (g *Guard) Check(ctx context.Context, r *http.Request) (Access, error) {
	access, err := g.check(ctx, r)
	if err != nil {
		g.denied(r, access, err)
		return access, err
	}
	metrics.RecordTVBoxDecision("allowed")
	return access, nil
}

func (g *Guard) denied(r *http.Request, access Access, err error) {
	outcome := strings.ToLower(auth.ErrorCode(err))
	metrics.RecordTVBoxDecision(outcome)
	g.security.LogEvent(&logging.SecurityEvent{
		Event:     logging.EventTVBoxDenied,
		Username:  access.Username,
		IPAddress: access.ClientIP,
		UserAgent: r.UserAgent(),
		Reason:    outcome,
	})
}

func (g *Guard) check(ctx context.Context, r *http.Request) (Access, error) {
	access, cfg, entry, err := g.admit(ctx, r, false)
	if err != nil {
		return access, err
	}

	decision := ValidateAccess(cfg, entry, access.Device.ID)
	if !decision.Allowed {
		return access, auth.ErrDeviceCapacityExceeded
	}
	if decision.Bind {
		if err := g.bind(ctx, entry.Username, access.Device); err != nil {
			return access, err
		}
		access.Bound = true
	}
	return access, nil
}

// admit runs every step before device validation: the user-agent
// whitelist, token resolution with the ban check, and the rate limit.
// With requireToken the token is resolved even when token auth is off.
func (g *Guard) admit(ctx context.Context, r *http.Request, requireToken bool) (Access, *models.TVBoxSecurityConfig, *models.UserToken, error) {
	ip := auth.ClientIP(r)
	access := Access{ClientIP: ip, Device: DeviceFromRequest(r, ip)}

	snap, err := g.store.Snapshot(ctx)
	if err != nil {
		return access, nil, nil, fmt.Errorf("%w: load configuration: %v", auth.ErrInternal, err)
	}
	cfg := &snap.TVBox

	if cfg.EnableUserAgentWhitelist && !UserAgentAllowed(cfg.AllowedUserAgents, r.UserAgent()) {
		return access, nil, nil, fmt.Errorf("%w: client not allowed", auth.ErrForbidden)
	}

	var entry *models.UserToken
	if cfg.EnableAuth || requireToken {
		token := TokenFromRequest(r)
		if token == "" {
			return access, nil, nil, auth.ErrUnauthenticated
		}
		idx := cfg.FindToken(token)
		if idx < 0 {
			return access, nil, nil, auth.ErrInvalidToken
		}
		entry = &cfg.UserTokens[idx]
		access.Username = entry.Username
		if !entry.Enabled {
			return access, nil, nil, fmt.Errorf("%w: token disabled", auth.ErrForbidden)
		}
		if u := snap.FindUser(entry.Username); u != nil && u.Banned {
			return access, nil, nil, auth.ErrBanned
		}
	}

	if cfg.EnableRateLimit {
		res, err := g.limiter.Allow(ctx, limitKey(access.Username, ip), cfg.RateLimit)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Box-client rate limiter unavailable, rejecting")
			return access, nil, nil, auth.ErrRateLimited
		}
		access.Rate = res
		if !res.Allowed {
			return access, nil, nil, auth.ErrRateLimited
		}
	}
	return access, cfg, entry, nil
}

// limitKey keys the counter by account, or by client IP without one.
// Tokens never appear in counter keys.
func limitKey(username, ip string) string {
	if username != "" {
		return "user:" + username
	}
	return "ip:" + ip
}

// bind records a first-use device. The cap is re-checked inside the update
// so concurrent binds cannot exceed it.
func (g *Guard) bind(ctx context.Context, username string, d Device) error {
	_, err := g.store.Update(ctx, func(s *models.ConfigSnapshot) error {
		idx := s.TVBox.FindUsername(username)
		if idx < 0 {
			return auth.ErrInvalidToken
		}
		entry := &s.TVBox.UserTokens[idx]
		if entry.HasDevice(d.ID) {
			return nil
		}
		if len(entry.Devices) >= s.TVBox.MaxDevices {
			return auth.ErrDeviceCapacityExceeded
		}
		entry.Devices = append(entry.Devices, d.Fingerprint(g.now()))
		return nil
	})
	if err != nil {
		if auth.IsRejection(err) {
			return err
		}
		return fmt.Errorf("%w: bind device: %v", auth.ErrInternal, err)
	}
	g.security.LogEvent(&logging.SecurityEvent{
		Event:     logging.EventTVBoxDeviceBound,
		Username:  username,
		IPAddress: d.IP,
		UserAgent: d.UserAgent,
		Success:   true,
		Details:   map[string]string{"device_id": d.ID},
	})
	return nil
}

// Middleware admits requests through Check and injects the Access.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := g.Check(r.Context(), r)
		if err != nil {
			if errors.Is(err, auth.ErrRateLimited) && access.Rate.ResetIn > 0 {
				w.Header().Set("Retry-After", fmt.Sprint(int(access.Rate.ResetIn.Seconds())+1))
			}
			auth.WriteError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), accessContextKey{}, access)
		if access.Username != "" {
			ctx = logging.ContextWithUsername(ctx, access.Username)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Rebind re-registers the calling device for the account holding the
// request's token. It passes the same admission steps as Check, then,
// unlike first-use binding, always succeeds, evicting the oldest bindings
// beyond maxDevices. It returns the evicted device ids.
func (g *Guard) Rebind(ctx context.Context, r *http.Request) (Access, []string, error) {
	access, evicted, err := g.rebind(ctx, r)
	if err != nil {
		g.denied(r, access, err)
		return access, nil, err
	}
	return access, evicted, nil
}

func (g *Guard) rebind(ctx context.Context, r *http.Request) (Access, []string, error) {
	access, _, entry, err := g.admit(ctx, r, true)
	if err != nil {
		return access, nil, err
	}
	token := entry.Token
	d := access.Device

	var evicted []models.DeviceFingerprint
	var username string
	_, err = g.store.Update(ctx, func(s *models.ConfigSnapshot) error {
		idx := s.TVBox.FindToken(token)
		if idx < 0 {
			return auth.ErrInvalidToken
		}
		if !s.TVBox.UserTokens[idx].Enabled {
			return fmt.Errorf("%w: token disabled", auth.ErrForbidden)
		}
		username = s.TVBox.UserTokens[idx].Username
		if u := s.FindUser(username); u != nil && u.Banned {
			return auth.ErrBanned
		}
		s.TVBox, evicted = BindNewDevice(s.TVBox, username, d.Fingerprint(g.now()))
		return nil
	})
	if err != nil {
		if auth.IsRejection(err) {
			return access, nil, err
		}
		return access, nil, fmt.Errorf("%w: rebind device: %v", auth.ErrInternal, err)
	}

	ids := make([]string, 0, len(evicted))
	for _, fp := range evicted {
		ids = append(ids, fp.DeviceID)
	}
	metrics.TVBoxDeviceEvictions.Add(float64(len(ids)))
	g.security.LogEvent(&logging.SecurityEvent{
		Event:     logging.EventTVBoxDeviceBound,
		Username:  username,
		IPAddress: d.IP,
		UserAgent: d.UserAgent,
		Success:   true,
		Details: map[string]string{
			"device_id": d.ID,
			"evicted":   fmt.Sprint(len(ids)),
		},
	})
	access.Bound = true
	return access, ids, nil
}

// ResetRateLimit clears the counters of identifier, which is a username or
// a client IP.
func (g *Guard) ResetRateLimit(ctx context.Context, actor, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return fmt.Errorf("%w: identifier is required", auth.ErrValidation)
	}
	for _, key := range []string{limitKey(identifier, ""), limitKey("", identifier)} {
		if err := g.limiter.Reset(ctx, key); err != nil {
			return fmt.Errorf("%w: %v", auth.ErrInternal, err)
		}
	}
	g.security.LogAdminAction(logging.EventTVBoxAdmin, actor, "", map[string]string{
		"action":     "reset_rate_limit",
		"identifier": identifier,
	})
	return nil
}

// ClearDevices removes every binding of username and returns how many.
func (g *Guard) ClearDevices(ctx context.Context, actor, username string) (int, error) {
	removed := 0
	err := g.updateEntry(ctx, username, func(entry *models.UserToken) error {
		removed = len(entry.Devices)
		entry.Devices = nil
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.security.LogAdminAction(logging.EventTVBoxAdmin, actor, username, map[string]string{
		"action":  "clear_devices",
		"removed": fmt.Sprint(removed),
	})
	return removed, nil
}

// RemoveDevice removes one binding of username.
func (g *Guard) RemoveDevice(ctx context.Context, actor, username, deviceID string) error {
	err := g.updateEntry(ctx, username, func(entry *models.UserToken) error {
		for i, d := range entry.Devices {
			if d.DeviceID == deviceID {
				entry.Devices = append(entry.Devices[:i], entry.Devices[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: device not bound to that account", auth.ErrValidation)
	})
	if err != nil {
		return err
	}
	g.security.LogAdminAction(logging.EventTVBoxAdmin, actor, username, map[string]string{
		"action":    "remove_device",
		"device_id": deviceID,
	})
	return nil
}

func (g *Guard) updateEntry(ctx context.Context, username string, fn func(entry *models.UserToken) error) error {
	_, err := g.store.Update(ctx, func(s *models.ConfigSnapshot) error {
		idx := s.TVBox.FindUsername(username)
		if idx < 0 {
			return fmt.Errorf("%w: no box-client token for that account", auth.ErrValidation)
		}
		return fn(&s.TVBox.UserTokens[idx])
	})
	if err != nil && !auth.IsRejection(err) {
		return fmt.Errorf("%w: %v", auth.ErrInternal, err)
	}
	return err
}
