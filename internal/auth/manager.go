// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/store"
	"github.com/tomtom215/reelgate/internal/validation"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Mode is config.AuthModeOwner or config.AuthModeMulti.
	Mode  string
	Owner *OwnerCredential

	// IdentityTTL bounds how long a verified access token is served from
	// the identity cache. It never outlives the token itself.
	IdentityTTL time.Duration

	// PasswordPolicy applies to registration and password changes.
	PasswordPolicy config.PasswordPolicy

	Now func() time.Time
}

// Manager orchestrates login, request authentication, refresh, logout,
// registration and password changes on top of the token codec, the
// credential store and the identity cache.
//
// Every error it returns is either one of the package's typed rejections or
// wraps ErrInternal; callers map them with StatusCode.
type Manager struct {
	mode        string
	owner       *OwnerCredential
	codec       *TokenCodec
	store       store.Store
	identities  cache.Cacher
	identityTTL time.Duration
	lockout     *LockoutManager
	resolver    *authz.Resolver
	policy      config.PasswordPolicy
	security    *logging.SecurityLogger
	now         func() time.Time
}

// NewManager wires a Manager. A nil lockout manager disables lockout.
func NewManager(cfg ManagerConfig, codec *TokenCodec, st store.Store, identities cache.Cacher, lockout *LockoutManager) (*Manager, error) {
	if cfg.Owner == nil {
		return nil, fmt.Errorf("owner credential is required")
	}
	if codec == nil || st == nil || identities == nil {
		return nil, fmt.Errorf("codec, store and identity cache are required")
	}
	switch cfg.Mode {
	case config.AuthModeOwner, config.AuthModeMulti:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = time.Minute
	}
	if cfg.PasswordPolicy.MinLength == 0 {
		cfg.PasswordPolicy = config.RelaxedPasswordPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if lockout == nil {
		lockout = NewLockoutManager(nil, config.LockoutConfig{})
	}
	security := logging.NewSecurityLogger()
	lockout.SetOnLockout(func(entry LockoutEntry) {
		security.LogAccountLocked(entry.Subject, entry.FailedAttempts)
	})

	return &Manager{
		mode:        cfg.Mode,
		owner:       cfg.Owner,
		codec:       codec,
		store:       st,
		identities:  identities,
		identityTTL: cfg.IdentityTTL,
		lockout:     lockout,
		resolver:    authz.NewResolver(cfg.Owner.Username()),
		policy:      cfg.PasswordPolicy,
		security:    security,
		now:         cfg.Now,
	}, nil
}

// Mode returns the configured auth mode.
func (m *Manager) Mode() string { return m.mode }

// OwnerUsername returns the configured owner name.
func (m *Manager) OwnerUsername() string { return m.owner.Username() }

// Codec exposes the token codec for the route guard.
func (m *Manager) Codec() *TokenCodec { return m.codec }

// Resolver returns the permission resolver bound to the owner name.
func (m *Manager) Resolver() *authz.Resolver { return m.resolver }

// Lockout returns the lockout manager.
func (m *Manager) Lockout() *LockoutManager { return m.lockout }

// LoginRequest carries login input plus client attributes for lockout and audit.
type LoginRequest struct {
	Username  string `json:"username" validate:"omitempty,max=64"`
	Password  string `json:"password" validate:"required,max=256"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// SessionResult is a freshly issued session.
type SessionResult struct {
	Identity models.Identity `json:"identity"`
	Tokens   *TokenPair      `json:"-"`
	// Signature is the cookie value of the stateless signature credential.
	Signature string `json:"-"`
}

// Login verifies credentials and issues a session. In owner mode the
// submitted username is ignored and the owner password is checked.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*SessionResult, error) {
	start := time.Now()
	res, err := m.login(ctx, req)
	metrics.RecordLogin(m.mode, outcome(err), time.Since(start))
	return res, err
}

func (m *Manager) login(ctx context.Context, req LoginRequest) (*SessionResult, error) {
	username := strings.TrimSpace(req.Username)
	if m.mode == config.AuthModeOwner {
		username = m.owner.Username()
	}
	if username == "" || req.Password == "" {
		m.security.LogLoginFailure(username, req.IP, req.UserAgent, "missing credentials")
		return nil, ErrInvalidCredentials
	}

	locked, remaining, err := m.lockout.CheckLocked(ctx, username, req.IP)
	if err != nil {
		return nil, internal("check lockout", err)
	}
	if locked {
		m.security.LogLoginFailure(username, req.IP, req.UserAgent, "locked")
		return nil, fmt.Errorf("%w: retry in %s", ErrLocked, remaining.Round(time.Second))
	}

	role, err := m.verifyCredentials(ctx, username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		m.security.LogLoginFailure(username, req.IP, req.UserAgent, "invalid credentials")
		if _, _, lerr := m.lockout.RecordFailedAttempt(ctx, username, req.IP); lerr != nil {
			logging.Ctx(ctx).Warn().Err(lerr).Msg("Failed to record failed login attempt")
		}
		return nil, err
	case errors.Is(err, ErrBanned):
		m.security.LogLoginFailure(username, req.IP, req.UserAgent, "banned")
		return nil, err
	case err != nil:
		return nil, err
	}

	res, err := m.issueSession(ctx, username, role)
	if err != nil {
		return nil, err
	}
	if err := m.lockout.RecordSuccessfulLogin(ctx, username); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to clear lockout state")
	}
	m.security.LogLoginSuccess(username, req.IP, req.UserAgent)
	return res, nil
}

// outcome is the metric label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(ErrorCode(err))
}

// verifyCredentials returns the role of a verified account. A correct
// password on a banned account yields ErrBanned, never ErrInvalidCredentials.
func (m *Manager) verifyCredentials(ctx context.Context, username, password string) (models.Role, error) {
	if m.owner.Is(username) {
		if m.owner.Verify(username, password) {
			return models.RoleOwner, nil
		}
		return "", ErrInvalidCredentials
	}
	if m.mode == config.AuthModeOwner {
		return "", ErrInvalidCredentials
	}

	ok, err := m.store.VerifyPassword(ctx, username, password)
	if err != nil {
		return "", internal("verify password", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return "", internal("load configuration", err)
	}
	u := snap.FindUser(username)
	if u == nil {
		return "", ErrInvalidCredentials
	}
	if u.Banned {
		return "", ErrBanned
	}
	return m.resolver.ResolveRole(snap, username), nil
}

// currentRole re-resolves an account that already holds a credential.
func (m *Manager) currentRole(ctx context.Context, username string) (models.Role, error) {
	if m.owner.Is(username) {
		return models.RoleOwner, nil
	}
	if m.mode == config.AuthModeOwner {
		return "", ErrUnauthenticated
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return "", internal("load configuration", err)
	}
	u := snap.FindUser(username)
	if u == nil {
		return "", ErrUnauthenticated
	}
	if u.Banned {
		return "", ErrBanned
	}
	return m.resolver.ResolveRole(snap, username), nil
}

func (m *Manager) issueSession(ctx context.Context, username string, role models.Role) (*SessionResult, error) {
	tokens, err := m.codec.Issue(ctx, username, role)
	if err != nil {
		return nil, internal("issue tokens", err)
	}
	return &SessionResult{
		Identity: models.Identity{
			Username:  username,
			Role:      role,
			IssuedAt:  m.now(),
			ExpiresAt: tokens.AccessExpiresAt,
		},
		Tokens:    tokens,
		Signature: m.codec.SignatureValue(username),
	}, nil
}

// Credentials are the session credentials extracted from a request.
type Credentials struct {
	AccessToken string
	// Signature is the optional "username.hexsig" signature credential.
	Signature string
}

// Authenticate resolves the identity behind an access token. Verified
// identities are cached under a hash of the token; a miss verifies the
// signature and expiry, checks the per-user revocation mark and re-reads
// the account so bans and deletions apply immediately.
func (m *Manager) Authenticate(ctx context.Context, cred Credentials) (models.Identity, error) {
	if cred.AccessToken == "" {
		return models.Identity{}, ErrUnauthenticated
	}

	var sigUser string
	if cred.Signature != "" {
		user, sig, ok := ParseSignatureValue(cred.Signature)
		if !ok || !m.codec.VerifySignature(user, sig) {
			metrics.RecordTokenVerification("signature", false)
			return models.Identity{}, ErrInvalidToken
		}
		sigUser = user
	}

	id, err := m.authenticateToken(ctx, cred.AccessToken)
	if err != nil {
		return models.Identity{}, err
	}
	if sigUser != "" && sigUser != id.Username {
		return models.Identity{}, ErrInvalidToken
	}
	return id, nil
}

func (m *Manager) authenticateToken(ctx context.Context, token string) (models.Identity, error) {
	key := ""
	if peeked := PeekUsername(token); peeked != "" {
		key = identityKey(peeked, token)
		if v, ok := m.identities.Get(key); ok {
			if id, ok := v.(models.Identity); ok {
				if m.now().Before(id.ExpiresAt) {
					metrics.RecordIdentityCache(true)
					return id, nil
				}
				m.identities.Delete(key)
				return models.Identity{}, ErrExpired
			}
		}
		metrics.RecordIdentityCache(false)
	}

	claims, err := m.codec.VerifyAccess(token)
	metrics.RecordTokenVerification("access", err == nil)
	if err != nil {
		return models.Identity{}, err
	}

	revoked, err := m.codec.IssuedBeforeRevocation(ctx, claims.Username, claims.Issued())
	if err != nil {
		return models.Identity{}, internal("read revocation mark", err)
	}
	if revoked {
		return models.Identity{}, ErrRevoked
	}

	role, err := m.currentRole(ctx, claims.Username)
	if err != nil {
		return models.Identity{}, err
	}

	id := models.Identity{
		Username:  claims.Username,
		Role:      role,
		IssuedAt:  claims.Issued(),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	ttl := min(m.identityTTL, id.ExpiresAt.Sub(m.now()))
	if key != "" && ttl > 0 {
		m.identities.SetWithTTL(key, id, ttl)
	}
	return id, nil
}

// identityKey keeps every cached identity of a user under one prefix so a
// single DeletePrefix purges them.
func identityKey(username, token string) string {
	return cache.HashKey(identityPrefix(username), token)
}

func identityPrefix(username string) string {
	return "identity:" + username
}

// purgeIdentities drops every cached identity of username.
func (m *Manager) purgeIdentities(username, reason string) {
	if username == "" {
		return
	}
	m.identities.DeletePrefix(identityPrefix(username) + ":")
	metrics.RecordInvalidation(reason)
}

// Refresh exchanges a refresh token for a new access token, and with
// rotation a new refresh token. The account is re-checked first.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*SessionResult, error) {
	var role models.Role
	resolve := func(ctx context.Context, username string) (models.Role, error) {
		r, err := m.currentRole(ctx, username)
		role = r
		return r, err
	}

	tokens, username, err := m.codec.ExchangeRefresh(ctx, refreshToken, resolve)
	if err != nil {
		var reuse *ReuseError
		if errors.As(err, &reuse) {
			m.security.LogRefreshReuse(username, reuse.FamilyID, reuse.Revoked)
			metrics.RefreshFamiliesRevoked.Inc()
			m.purgeIdentities(username, "refresh_reuse")
		}
		metrics.RecordRefresh(outcome(err))
		m.security.LogTokenRefresh(username, false, outcome(err))
		if IsRejection(err) {
			return nil, err
		}
		return nil, internal("refresh", err)
	}

	metrics.RecordRefresh("success")
	m.security.LogTokenRefresh(username, true, "")
	return &SessionResult{
		Identity: models.Identity{
			Username:  username,
			Role:      role,
			IssuedAt:  m.now(),
			ExpiresAt: tokens.AccessExpiresAt,
		},
		Tokens:    tokens,
		Signature: m.codec.SignatureValue(username),
	}, nil
}

// LogoutRequest identifies the session being ended. Either field may be empty.
type LogoutRequest struct {
	RefreshToken string
	Username     string
	IP           string
}

// Logout revokes the refresh family and purges cached identities. It never
// fails; storage errors are logged.
func (m *Manager) Logout(ctx context.Context, req LogoutRequest) {
	username := req.Username
	if req.RefreshToken != "" {
		owner, err := m.codec.Revoke(ctx, req.RefreshToken)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to revoke refresh token on logout")
		}
		if username == "" {
			username = owner
		}
	}
	m.purgeIdentities(username, "logout")
	if username != "" {
		m.security.LogLogout(username, req.IP)
	}
}

// RegisterRequest is a self-service registration.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,username"`
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Reason          string `json:"reason" validate:"max=500"`
	IP              string `json:"-"`
}

// RegisterResult is either a pending request or a new session.
type RegisterResult struct {
	Pending bool           `json:"pending"`
	Session *SessionResult `json:"-"`
}

// Register creates an account, or queues it for approval when the site
// requires it. Registration is closed in owner mode.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	res, err := m.register(ctx, req)
	switch {
	case err == nil && res.Pending:
		metrics.Registrations.WithLabelValues("pending").Inc()
	case err == nil:
		metrics.Registrations.WithLabelValues("created").Inc()
	case errors.Is(err, ErrRegistrationClosed):
		metrics.Registrations.WithLabelValues("closed").Inc()
	case IsRejection(err):
		metrics.Registrations.WithLabelValues("invalid").Inc()
	}
	return res, err
}

func (m *Manager) register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if m.mode == config.AuthModeOwner {
		return nil, ErrRegistrationClosed
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, internal("load configuration", err)
	}
	if !snap.Site.AllowRegistration {
		return nil, ErrRegistrationClosed
	}

	req.Username = strings.TrimSpace(req.Username)
	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(verr.Messages(), "; "))
	}
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}
	if m.owner.Is(req.Username) {
		return nil, errUsernameUnavailable
	}
	if err := m.policy.ValidateWithError(req.Password, req.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := m.now()
	if snap.Site.RequireApproval {
		err := m.store.AddPending(ctx, models.PendingUser{
			Username:    req.Username,
			Reason:      req.Reason,
			RequestedAt: now,
		}, req.Password)
		if err != nil {
			return nil, storeWriteError("queue registration", err)
		}
		m.security.LogEvent(&logging.SecurityEvent{
			Event:     logging.EventRegistrationRequest,
			Username:  req.Username,
			IPAddress: req.IP,
			Success:   true,
			Reason:    "pending approval",
		})
		return &RegisterResult{Pending: true}, nil
	}

	user := models.User{Username: req.Username, Role: models.RoleUser, CreatedAt: now}
	if err := m.store.CreateUser(ctx, user, req.Password); err != nil {
		return nil, storeWriteError("create user", err)
	}
	m.security.LogEvent(&logging.SecurityEvent{
		Event:     logging.EventRegistrationRequest,
		Username:  req.Username,
		IPAddress: req.IP,
		Success:   true,
		Reason:    "created",
	})
	session, err := m.issueSession(ctx, req.Username, models.RoleUser)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{Session: session}, nil
}

var errUsernameUnavailable = fmt.Errorf("%w: username unavailable", ErrValidation)

// storeWriteError maps name collisions to a validation error that does not
// reveal whether the name is active or pending.
func storeWriteError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrUserExists), errors.Is(err, store.ErrPendingExists):
		return errUsernameUnavailable
	case errors.Is(err, ErrValidation):
		return err
	default:
		return internal(op, err)
	}
}

// ChangePasswordRequest changes the caller's own password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

// ChangePassword verifies the old password, stores the new one and ends
// every outstanding session of the account before issuing a fresh one.
// The owner credential lives in process configuration and cannot change here.
func (m *Manager) ChangePassword(ctx context.Context, username string, req ChangePasswordRequest) (*SessionResult, error) {
	if m.owner.Is(username) {
		return nil, ErrForbidden
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(verr.Messages(), "; "))
	}

	ok, err := m.store.VerifyPassword(ctx, username, req.OldPassword)
	if err != nil {
		return nil, internal("verify password", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if req.NewPassword == req.OldPassword {
		return nil, fmt.Errorf("%w: new password must differ from the current one", ErrValidation)
	}
	if err := m.policy.ValidateWithError(req.NewPassword, username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := m.store.ChangePassword(ctx, username, req.NewPassword); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storeWriteError("change password", err)
	}
	revoked, err := m.codec.RevokeUser(ctx, username)
	if err != nil {
		return nil, internal("revoke sessions", err)
	}
	m.purgeIdentities(username, "password_change")
	m.security.LogAdminAction(logging.EventPasswordChanged, username, username, map[string]string{
		"revoked_refresh_tokens": fmt.Sprint(revoked),
	})

	role, err := m.currentRole(ctx, username)
	if err != nil {
		return nil, err
	}
	return m.issueSession(ctx, username, role)
}

// ListPending returns registrations awaiting approval, oldest first.
func (m *Manager) ListPending(ctx context.Context) ([]models.PendingUser, error) {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return nil, internal("list pending registrations", err)
	}
	return pending, nil
}

// ApproveRegistration activates a pending registration as a regular user.
func (m *Manager) ApproveRegistration(ctx context.Context, actor, username string) (*models.User, error) {
	snap, err := m.store.ApprovePending(ctx, username, models.User{
		Username:  username,
		Role:      models.RoleUser,
		CreatedAt: m.now(),
	})
	switch {
	case errors.Is(err, store.ErrPendingNotFound):
		return nil, fmt.Errorf("%w: no pending registration for that username", ErrValidation)
	case err != nil:
		return nil, storeWriteError("approve registration", err)
	}
	metrics.Registrations.WithLabelValues("approved").Inc()
	metrics.ConfigVersion.Set(float64(snap.Version))
	m.security.LogAdminAction(logging.EventRegistrationDecision, actor, username, map[string]string{"decision": "approved"})
	return snap.FindUser(username), nil
}

// RejectRegistration drops a pending registration.
func (m *Manager) RejectRegistration(ctx context.Context, actor, username string) error {
	if _, err := m.store.TakePending(ctx, username); err != nil {
		if errors.Is(err, store.ErrPendingNotFound) {
			return fmt.Errorf("%w: no pending registration for that username", ErrValidation)
		}
		return internal("reject registration", err)
	}
	metrics.Registrations.WithLabelValues("rejected").Inc()
	m.security.LogAdminAction(logging.EventRegistrationDecision, actor, username, map[string]string{"decision": "rejected"})
	return nil
}

// CreateUserRequest is an administrative account creation.
type CreateUserRequest struct {
	Username string   `json:"username" validate:"required,username"`
	Password string   `json:"password" validate:"required,max=72"`
	Tags     []string `json:"tags,omitempty" validate:"dive,required"`
}

// CreateUser adds an active account with role user. It works in both auth
// modes and regardless of the site registration switch.
func (m *Manager) CreateUser(ctx context.Context, actor string, req CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(verr.Messages(), "; "))
	}
	if m.owner.Is(req.Username) {
		return nil, errUsernameUnavailable
	}
	if err := m.policy.ValidateWithError(req.Password, req.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, internal("load configuration", err)
	}
	for _, name := range req.Tags {
		if snap.FindTag(name) == nil {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrValidation, name)
		}
	}

	user := models.User{
		Username:  req.Username,
		Role:      models.RoleUser,
		Tags:      req.Tags,
		CreatedAt: m.now(),
	}
	if err := m.store.CreateUser(ctx, user, req.Password); err != nil {
		return nil, storeWriteError("create user", err)
	}
	m.identities.Clear()
	m.security.LogAdminAction(logging.EventAccountCreated, actor, req.Username, nil)
	return &user, nil
}

// DeleteUser removes an account, its credential and its box-client entry,
// then ends its sessions.
func (m *Manager) DeleteUser(ctx context.Context, actor, username string) error {
	if m.owner.Is(username) {
		return ErrForbidden
	}
	if err := m.store.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("%w: unknown user", ErrValidation)
		}
		return internal("delete user", err)
	}
	if _, err := m.codec.RevokeUser(ctx, username); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("username", logging.SanitizeUsername(username)).Msg("Failed to revoke sessions of deleted account")
	}
	m.identities.Clear()
	metrics.RecordInvalidation("account_deleted")
	m.security.LogAdminAction(logging.EventAccountDeleted, actor, username, nil)
	return nil
}

// Effective returns the resolved permissions of username against the
// current configuration.
func (m *Manager) Effective(ctx context.Context, username string) (models.EffectivePermissions, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return models.EffectivePermissions{}, internal("load configuration", err)
	}
	return m.resolver.Effective(snap, username), nil
}

// Snapshot returns the current configuration.
func (m *Manager) Snapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, internal("load configuration", err)
	}
	return snap, nil
}

// UpdateConfig applies an administrative change through the store's single
// save path. The result must pass ValidatePermissionConfig. Afterwards the
// identity cache is cleared, and accounts that were banned or deleted by the
// change lose their refresh tokens.
//
// fn may return typed rejections (ErrValidation, ErrForbidden); they pass
// through unchanged.
func (m *Manager) UpdateConfig(ctx context.Context, actor string, fn store.UpdateFunc) (*models.ConfigSnapshot, error) {
	var before *models.ConfigSnapshot
	next, err := m.store.Update(ctx, func(s *models.ConfigSnapshot) error {
		before = s.Clone()
		if err := fn(s); err != nil {
			return err
		}
		if res := authz.ValidatePermissionConfig(s, m.owner.Username()); !res.Valid {
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(res.Errors, "; "))
		}
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			return nil, err
		}
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrValidation)
		}
		return nil, internal("save configuration", err)
	}

	m.identities.Clear()
	metrics.RecordInvalidation("config_save")
	metrics.ConfigVersion.Set(float64(next.Version))

	for _, username := range lostAccess(before, next) {
		if _, err := m.codec.RevokeUser(ctx, username); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("username", logging.SanitizeUsername(username)).Msg("Failed to revoke sessions of removed account")
		}
	}
	m.security.LogAdminAction(logging.EventPermissionsChanged, actor, "", map[string]string{
		"version": fmt.Sprint(next.Version),
	})
	return next, nil
}

// lostAccess lists users that were active in before and are banned or gone
// in after.
func lostAccess(before, after *models.ConfigSnapshot) []string {
	if before == nil {
		return nil
	}
	var out []string
	for i := range before.Users {
		u := &before.Users[i]
		if u.Banned {
			continue
		}
		if nu := after.FindUser(u.Username); nu == nil || nu.Banned {
			out = append(out, u.Username)
		}
	}
	return out
}

var (
	errMigrationFailed    = errors.New("migration failed")
	errMigrationUnchanged = errors.New("migration found nothing to change")
)

// MigrateLegacy folds legacy feature tokens into structured flags and saves
// the result through the store. A failed or empty run writes nothing.
func (m *Manager) MigrateLegacy(ctx context.Context, actor string) (authz.MigrationResult, error) {
	var result authz.MigrationResult
	next, err := m.store.Update(ctx, func(s *models.ConfigSnapshot) error {
		migrated, res := authz.MigrateLegacyPermissions(s)
		result = res
		if !res.Success {
			return errMigrationFailed
		}
		if !res.Changed() {
			return errMigrationUnchanged
		}
		*s = *migrated
		return nil
	})
	switch {
	case errors.Is(err, errMigrationUnchanged):
		metrics.MigrationRuns.WithLabelValues("unchanged").Inc()
		return result, nil
	case errors.Is(err, errMigrationFailed):
		metrics.MigrationRuns.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("%w: %s", ErrValidation, result.Message)
	case err != nil:
		metrics.MigrationRuns.WithLabelValues("failed").Inc()
		return authz.MigrationResult{Message: "configuration could not be saved"}, internal("save migrated configuration", err)
	}

	m.identities.Clear()
	metrics.RecordInvalidation("migration")
	metrics.MigrationRuns.WithLabelValues("changed").Inc()
	metrics.ConfigVersion.Set(float64(next.Version))
	m.security.LogAdminAction(logging.EventMigration, actor, "", map[string]string{
		"changed_users":    fmt.Sprint(len(result.ChangedUsers)),
		"changed_tags":     fmt.Sprint(len(result.ChangedTags)),
		"inheriting_users": strings.Join(result.InheritingUsers, ","),
	})
	return result, nil
}
