// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/reelgate/internal/models"
)

// Claims are the access token claims.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	// IssuedAtNano is the exact issue instant. The registered iat claim
	// only carries whole seconds.
	IssuedAtNano int64 `json:"iat_ns,omitempty"`
	jwt.RegisteredClaims
}

// Issued returns the issue instant, falling back to iat for tokens that
// lack the nanosecond claim.
func (c *Claims) Issued() time.Time {
	if c.IssuedAtNano != 0 {
		return time.Unix(0, c.IssuedAtNano)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// TokenPair is what a successful login or refresh hands back. RefreshToken
// is empty when a refresh exchange did not rotate.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// CodecConfig configures a TokenCodec.
type CodecConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate replaces the refresh token on every exchange.
	Rotate bool
	Issuer string
	Now    func() time.Time
}

// RoleResolver returns the current role for username, or a rejection when
// the account may no longer hold a session.
type RoleResolver func(ctx context.Context, username string) (models.Role, error)

// TokenCodec issues and verifies session credentials. It is the only
// component that holds the server secret.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	issuer     string
	now        func() time.Time
	store      RefreshStore

	mu       sync.Mutex
	lastMark time.Time
}

const refreshTokenBytes = 32

// NewTokenCodec creates a codec backed by store for refresh records.
func NewTokenCodec(cfg CodecConfig, store RefreshStore) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive (access=%v refresh=%v)", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if store == nil {
		return nil, fmt.Errorf("refresh store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "reelgate"
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenCodec{
		secret:     secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		rotate:     cfg.Rotate,
		issuer:     cfg.Issuer,
		now:        cfg.Now,
		store:      store,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue creates an access token and a refresh token in a new family.
func (c *TokenCodec) Issue(ctx context.Context, username string, role models.Role) (*TokenPair, error) {
	return c.issue(ctx, username, role, uuid.NewString())
}

func (c *TokenCodec) issue(ctx context.Context, username string, role models.Role, familyID string) (*TokenPair, error) {
	access, accessExp, err := c.IssueAccess(username, role)
	if err != nil {
		return nil, err
	}
	raw, rec, err := c.newRefresh(username, familyID)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// IssueAccess signs a standalone access token.
// The expiry is rounded up to the whole second the exp claim can carry, so
// the returned instant is exactly the one the token is checked against.
func (c *TokenCodec) IssueAccess(username string, role models.Role) (string, time.Time, error) {
	now := c.issueTime()
	exp := ceilSecond(now.Add(c.accessTTL))
	claims := &Claims{
		Username:     username,
		Role:         role.String(),
		IssuedAtNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess checks signature and expiry. Malformed input is reported as
// ErrInvalidToken, an elapsed expiry as ErrExpired; it never panics.
func (c *TokenCodec) VerifyAccess(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	if _, err := models.ParseRole(claims.Role); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// PeekUsername reads the username claim without verifying the token. It is
// only fit for choosing a cache key; never trust the result.
func PeekUsername(tokenString string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ""
	}
	return claims.Username
}

// ExchangeRefresh redeems a refresh token for a new access token. The
// current role comes from resolve, which may reject the account (banned,
// deleted). With rotation on, the presented token is revoked and a
// successor in the same family is returned; presenting an already rotated
// token revokes the whole family.
func (c *TokenCodec) ExchangeRefresh(ctx context.Context, raw string, resolve RoleResolver) (*TokenPair, string, error) {
	rec, err := c.lookupRefresh(ctx, raw)
	if err != nil {
		return nil, "", err
	}
	if rec.Revoked {
		if c.rotate {
			n, ferr := c.store.RevokeFamily(ctx, rec.FamilyID)
			if ferr != nil {
				return nil, rec.Username, fmt.Errorf("revoke family: %w", ferr)
			}
			return nil, rec.Username, &ReuseError{FamilyID: rec.FamilyID, Revoked: n}
		}
		return nil, rec.Username, ErrRevoked
	}
	if !c.now().Before(rec.ExpiresAt) {
		return nil, rec.Username, ErrExpired
	}
	mark, err := c.store.UserMark(ctx, rec.Username)
	if err != nil {
		return nil, rec.Username, fmt.Errorf("read revocation mark: %w", err)
	}
	if issuedBefore(rec.IssuedAt, mark) {
		return nil, rec.Username, ErrRevoked
	}

	role, err := resolve(ctx, rec.Username)
	if err != nil {
		return nil, rec.Username, err
	}

	if !c.rotate {
		access, exp, err := c.IssueAccess(rec.Username, role)
		if err != nil {
			return nil, rec.Username, err
		}
		return &TokenPair{AccessToken: access, AccessExpiresAt: exp}, rec.Username, nil
	}

	won, err := c.store.Revoke(ctx, rec.ID)
	if err != nil {
		return nil, rec.Username, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !won {
		// A concurrent exchange rotated it first.
		n, _ := c.store.RevokeFamily(ctx, rec.FamilyID)
		return nil, rec.Username, &ReuseError{FamilyID: rec.FamilyID, Revoked: n}
	}
	pair, err := c.issue(ctx, rec.Username, role, rec.FamilyID)
	return pair, rec.Username, err
}

// Revoke invalidates the family of a refresh token. Unknown tokens are
// ignored so logout is idempotent. It returns the owning username, if any.
func (c *TokenCodec) Revoke(ctx context.Context, raw string) (string, error) {
	rec, err := c.lookupRefresh(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return "", nil
		}
		return "", err
	}
	if _, err := c.store.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return rec.Username, fmt.Errorf("revoke refresh family: %w", err)
	}
	return rec.Username, nil
}

// RevokeUser revokes every refresh token of username and records a mark so
// access tokens issued at or before now are refused on their next
// verification. Credentials this codec issues afterwards are stamped
// strictly after the mark.
func (c *TokenCodec) RevokeUser(ctx context.Context, username string) (int, error) {
	n, err := c.store.RevokeUser(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	mark := c.now()
	c.mu.Lock()
	if mark.After(c.lastMark) {
		c.lastMark = mark
	}
	c.mu.Unlock()
	if err := c.store.SetUserMark(ctx, username, mark, c.refreshTTL); err != nil {
		return n, fmt.Errorf("set revocation mark: %w", err)
	}
	return n, nil
}

// IssuedBeforeRevocation reports whether a token issued at iat predates the
// latest RevokeUser call for username.
func (c *TokenCodec) IssuedBeforeRevocation(ctx context.Context, username string, iat time.Time) (bool, error) {
	mark, err := c.store.UserMark(ctx, username)
	if err != nil {
		return false, err
	}
	return issuedBefore(iat, mark), nil
}

// issuedBefore reports whether iat is at or before mark.
func issuedBefore(iat, mark time.Time) bool {
	if mark.IsZero() {
		return false
	}
	return !iat.After(mark)
}

// issueTime is the clock reading, bumped past the latest revocation mark
// so a session issued right after a revocation outlives it.
func (c *TokenCodec) issueTime() time.Time {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.After(c.lastMark) {
		now = c.lastMark.Add(time.Nanosecond)
	}
	return now
}

func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second)
	}
	return t
}

// CleanupExpired drops refresh records past their expiry.
func (c *TokenCodec) CleanupExpired(ctx context.Context) (int, error) {
	return c.store.CleanupExpired(ctx, c.now())
}

func (c *TokenCodec) lookupRefresh(ctx context.Context, raw string) (*RefreshRecord, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	rec, err := c.store.Get(ctx, refreshID(raw))
	if errors.Is(err, ErrRefreshNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	return rec, nil
}

func (c *TokenCodec) newRefresh(username, familyID string) (string, *RefreshRecord, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)
	now := c.issueTime()
	return raw, &RefreshRecord{
		ID:        refreshID(raw),
		FamilyID:  familyID,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.refreshTTL),
	}, nil
}

// refreshID is the storage key of a raw refresh token; the raw value is
// never persisted.
func refreshID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Sign returns the stateless signature credential for username.
func (c *TokenCodec) Sign(username string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(username))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the signature of username.
func (c *TokenCodec) VerifySignature(username, sig string) bool {
	if username == "" || sig == "" {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(username))
	return hmac.Equal(mac.Sum(nil), want)
}

// SignatureValue is the cookie form of the signature credential.
func (c *TokenCodec) SignatureValue(username string) string {
	return username + "." + c.Sign(username)
}

// ParseSignatureValue splits a cookie value produced by SignatureValue.
// Usernames may contain dots, so the signature is taken after the last one.
func ParseSignatureValue(v string) (username, sig string, ok bool) {
	i := strings.LastIndexByte(v, '.')
	if i <= 0 || i == len(v)-1 {
		return "", "", false
	}
	return v[:i], v[i+1:], true
}

// ReuseError reports that a rotated refresh token was presented again.
// It classifies as ErrRevoked.
type ReuseError struct {
	FamilyID string
	Revoked  int
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse detected (family %s, %d revoked)", e.FamilyID, e.Revoked)
}

func (e *ReuseError) Unwrap() error { return ErrRevoked }
