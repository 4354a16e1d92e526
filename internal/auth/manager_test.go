// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/store"
)

const (
	ownerName     = "boss"
	ownerPassword = "Owner-Pass-123!"
	userPassword  = "sunny-river-42"
)

type managerFixture struct {
	m     *Manager
	clock *fakeClock
	store *store.MemoryStore
	ids   *cache.Cache
	codec *TokenCodec
}

type fixtureOptions struct {
	mode    string
	lockout config.LockoutConfig
	site    models.SiteConfig
}

func newManagerFixture(t *testing.T, opts fixtureOptions) *managerFixture {
	t.Helper()
	if opts.mode == "" {
		opts.mode = config.AuthModeMulti
	}
	clock := newFakeClock()
	hasher := NewBcryptHasher(bcrypt.MinCost)

	seed := models.NewConfigSnapshot()
	seed.Site = opts.site
	st := store.NewMemoryStore(store.Options{Hasher: hasher, Seed: seed, Now: clock.Now})

	codec, _ := newTestCodec(t, clock, true)
	owner, err := NewOwnerCredential(ownerName, ownerPassword, hasher)
	if err != nil {
		t.Fatal(err)
	}
	ids := cache.New(time.Minute)

	var lockout *LockoutManager
	if opts.lockout.Enabled {
		lockout = NewLockoutManager(nil, opts.lockout)
		lockout.now = clock.Now
	}

	m, err := NewManager(ManagerConfig{
		Mode:        opts.mode,
		Owner:       owner,
		IdentityTTL: time.Minute,
		Now:         clock.Now,
	}, codec, st, ids, lockout)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return &managerFixture{m: m, clock: clock, store: st, ids: ids, codec: codec}
}

func (f *managerFixture) addUser(t *testing.T, u models.User) {
	t.Helper()
	if err := f.store.CreateUser(context.Background(), u, userPassword); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", u.Username, err)
	}
}

func (f *managerFixture) login(t *testing.T, username, password string) *SessionResult {
	t.Helper()
	res, err := f.m.Login(context.Background(), LoginRequest{Username: username, Password: password, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return res
}

func (f *managerFixture) authenticate(res *SessionResult) (models.Identity, error) {
	return f.m.Authenticate(context.Background(), Credentials{
		AccessToken: res.Tokens.AccessToken,
		Signature:   res.Signature,
	})
}

func TestNewManager_Validation(t *testing.T) {
	codec, _ := newTestCodec(t, newFakeClock(), true)
	owner, _ := NewOwnerCredential(ownerName, ownerPassword, NewBcryptHasher(bcrypt.MinCost))
	st := store.NewMemoryStore(store.Options{Hasher: NewBcryptHasher(bcrypt.MinCost)})

	if _, err := NewManager(ManagerConfig{Mode: "ldap", Owner: owner}, codec, st, cache.New(time.Minute), nil); err == nil {
		t.Error("NewManager() accepted an unknown mode")
	}
	if _, err := NewManager(ManagerConfig{Mode: config.AuthModeMulti}, codec, st, cache.New(time.Minute), nil); err == nil {
		t.Error("NewManager() accepted a missing owner")
	}
}

func TestManager_OwnerMode(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{mode: config.AuthModeOwner})
	ctx := context.Background()

	// The submitted username is ignored in owner mode.
	res := f.login(t, "whoever", ownerPassword)
	if res.Identity.Username != ownerName || res.Identity.Role != models.RoleOwner {
		t.Errorf("Identity = %+v, want owner %s", res.Identity, ownerName)
	}

	id, err := f.authenticate(res)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Role != models.RoleOwner {
		t.Errorf("Role = %s, want owner", id.Role)
	}

	snap, _ := f.m.Snapshot(ctx)
	for _, feat := range models.AllFeatures {
		if !f.m.Resolver().ResolveFeature(snap, id.Username, feat) {
			t.Errorf("owner lacks feature %s", feat)
		}
	}

	if _, err := f.m.Login(ctx, LoginRequest{Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword}); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("Register() in owner mode error = %v, want ErrRegistrationClosed", err)
	}
}

func TestManager_LoginAuthenticateRoundTrip(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice", Role: models.RoleUser})
	f.addUser(t, models.User{Username: "adam", Role: models.RoleAdmin})

	tests := []struct {
		username string
		password string
		role     models.Role
	}{
		{"alice", userPassword, models.RoleUser},
		{"adam", userPassword, models.RoleAdmin},
		{ownerName, ownerPassword, models.RoleOwner},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			res := f.login(t, tt.username, tt.password)
			if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" || res.Signature == "" {
				t.Fatal("Login() did not issue every credential")
			}
			id, err := f.authenticate(res)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if id.Username != tt.username || id.Role != tt.role {
				t.Errorf("Authenticate() = %s/%s, want %s/%s", id.Username, id.Role, tt.username, tt.role)
			}
		})
	}
}

func TestManager_LoginRejections(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	f.addUser(t, models.User{Username: "mallory", Banned: true})
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"wrong password", "alice", "wrong-pass-1", ErrInvalidCredentials},
		{"unknown user", "nobody", userPassword, ErrInvalidCredentials},
		{"empty password", "alice", "", ErrInvalidCredentials},
		{"banned with correct password", "mallory", userPassword, ErrBanned},
		{"banned with wrong password", "mallory", "wrong-pass-1", ErrInvalidCredentials},
		{"owner with wrong password", ownerName, userPassword, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.m.Login(ctx, LoginRequest{Username: tt.username, Password: tt.password})
			if !errors.Is(err, tt.want) {
				t.Errorf("Login() error = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("Login() issued a session on rejection")
			}
		})
	}
}

func TestManager_Lockout(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{lockout: config.LockoutConfig{
		Enabled: true, MaxAttempts: 2, Duration: 10 * time.Minute,
	}})
	f.addUser(t, models.User{Username: "alice"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = f.m.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-pass-1"})
	}
	_, err := f.m.Login(ctx, LoginRequest{Username: "alice", Password: userPassword})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Login() while locked error = %v, want ErrLocked", err)
	}
	if StatusCode(err) != 403 {
		t.Errorf("StatusCode() = %d, want 403", StatusCode(err))
	}

	f.clock.Advance(10 * time.Minute)
	f.login(t, "alice", userPassword)
}

func TestManager_AuthenticateRejections(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	f.addUser(t, models.User{Username: "bob"})
	alice := f.login(t, "alice", userPassword)
	bob := f.login(t, "bob", userPassword)
	ctx := context.Background()

	tests := []struct {
		name string
		cred Credentials
		want error
	}{
		{"no token", Credentials{}, ErrUnauthenticated},
		{"garbage token", Credentials{AccessToken: "x.y.z"}, ErrInvalidToken},
		{"forged signature", Credentials{AccessToken: alice.Tokens.AccessToken, Signature: "alice.deadbeef"}, ErrInvalidToken},
		{"malformed signature", Credentials{AccessToken: alice.Tokens.AccessToken, Signature: "alice"}, ErrInvalidToken},
		{"signature of another user", Credentials{AccessToken: alice.Tokens.AccessToken, Signature: bob.Signature}, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.m.Authenticate(ctx, tt.cred); !errors.Is(err, tt.want) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.want)
			}
		})
	}

	// Token alone, without the optional signature, is enough.
	if _, err := f.m.Authenticate(ctx, Credentials{AccessToken: alice.Tokens.AccessToken}); err != nil {
		t.Errorf("Authenticate() without signature error = %v", err)
	}
}

func TestManager_AuthenticateUsesCacheAndExpires(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	res := f.login(t, "alice", userPassword)

	if _, err := f.authenticate(res); err != nil {
		t.Fatal(err)
	}
	hitsBefore := f.ids.GetStats().Hits
	if _, err := f.authenticate(res); err != nil {
		t.Fatal(err)
	}
	if f.ids.GetStats().Hits != hitsBefore+1 {
		t.Error("second Authenticate() did not hit the identity cache")
	}

	f.clock.Advance(15 * time.Minute)
	if _, err := f.authenticate(res); !errors.Is(err, ErrExpired) {
		t.Errorf("Authenticate() after expiry error = %v, want ErrExpired", err)
	}
}

func TestManager_BanTakesEffectImmediately(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	res := f.login(t, "alice", userPassword)
	ctx := context.Background()

	if _, err := f.authenticate(res); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.UpdateConfig(ctx, ownerName, func(s *models.ConfigSnapshot) error {
		s.FindUser("alice").Banned = true
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if f.ids.Len() != 0 {
		t.Errorf("identity cache holds %d entries after config save, want 0", f.ids.Len())
	}

	if _, err := f.authenticate(res); !errors.Is(err, ErrBanned) && !errors.Is(err, ErrRevoked) {
		t.Errorf("Authenticate() after ban error = %v, want a rejection", err)
	}
	if _, err := f.m.Refresh(ctx, res.Tokens.RefreshToken); !IsRejection(err) {
		t.Errorf("Refresh() after ban error = %v, want a rejection", err)
	}
}

func TestManager_RefreshReResolvesRole(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	res := f.login(t, "alice", userPassword)
	ctx := context.Background()

	_, err := f.m.UpdateConfig(ctx, ownerName, func(s *models.ConfigSnapshot) error {
		s.FindUser("alice").Role = models.RoleAdmin
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Minute)
	next, err := f.m.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.Identity.Role != models.RoleAdmin {
		t.Errorf("refreshed role = %s, want admin", next.Identity.Role)
	}
	if next.Tokens.RefreshToken == res.Tokens.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	id, err := f.authenticate(next)
	if err != nil || id.Role != models.RoleAdmin {
		t.Errorf("Authenticate(refreshed) = %+v, %v", id, err)
	}

	// Replaying the rotated token is theft: the whole family dies.
	if _, err := f.m.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Errorf("replayed refresh error = %v, want ErrRevoked", err)
	}
	if _, err := f.m.Refresh(ctx, next.Tokens.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Errorf("successor after replay error = %v, want ErrRevoked", err)
	}
}

func TestManager_Logout(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	res := f.login(t, "alice", userPassword)
	ctx := context.Background()

	if _, err := f.authenticate(res); err != nil {
		t.Fatal(err)
	}
	f.m.Logout(ctx, LogoutRequest{RefreshToken: res.Tokens.RefreshToken})

	if f.ids.Len() != 0 {
		t.Errorf("identity cache holds %d entries after logout, want 0", f.ids.Len())
	}
	if _, err := f.m.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Errorf("Refresh() after logout error = %v, want ErrRevoked", err)
	}

	// Idempotent.
	f.m.Logout(ctx, LogoutRequest{RefreshToken: res.Tokens.RefreshToken})
	f.m.Logout(ctx, LogoutRequest{})
}

func TestManager_RegisterValidation(t *testing.T) {
	ctx := context.Background()

	closed := newManagerFixture(t, fixtureOptions{})
	if _, err := closed.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword}); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("Register() with registration off error = %v, want ErrRegistrationClosed", err)
	}

	f := newManagerFixture(t, fixtureOptions{site: models.SiteConfig{AllowRegistration: true}})
	f.addUser(t, models.User{Username: "taken"})

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"password mismatch", RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword + "x"}},
		{"bad username", RegisterRequest{Username: "a b", Password: userPassword, ConfirmPassword: userPassword}},
		{"short username", RegisterRequest{Username: "ab", Password: userPassword, ConfirmPassword: userPassword}},
		{"owner name", RegisterRequest{Username: ownerName, Password: userPassword, ConfirmPassword: userPassword}},
		{"weak password", RegisterRequest{Username: "alice", Password: "short1", ConfirmPassword: "short1"}},
		{"existing user", RegisterRequest{Username: "taken", Password: userPassword, ConfirmPassword: userPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.m.Register(ctx, tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
			if res != nil {
				t.Error("Register() returned a result on rejection")
			}
		})
	}
}

func TestManager_RegisterImmediate(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{site: models.SiteConfig{AllowRegistration: true}})
	ctx := context.Background()

	res, err := f.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.Pending || res.Session == nil {
		t.Fatalf("Register() = %+v, want an immediate session", res)
	}
	id, err := f.authenticate(res.Session)
	if err != nil || id.Username != "alice" || id.Role != models.RoleUser {
		t.Errorf("Authenticate(registered) = %+v, %v", id, err)
	}
}

func TestManager_RegisterWithApproval(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{site: models.SiteConfig{AllowRegistration: true, RequireApproval: true}})
	ctx := context.Background()

	res, err := f.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword, Reason: "family"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !res.Pending || res.Session != nil {
		t.Fatalf("Register() = %+v, want pending without tokens", res)
	}
	if _, err := f.m.Login(ctx, LoginRequest{Username: "alice", Password: userPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() before approval error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword}); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate pending Register() error = %v, want ErrValidation", err)
	}

	pending, err := f.m.ListPending(ctx)
	if err != nil || len(pending) != 1 || pending[0].Reason != "family" {
		t.Fatalf("ListPending() = %+v, %v", pending, err)
	}

	user, err := f.m.ApproveRegistration(ctx, ownerName, "alice")
	if err != nil {
		t.Fatalf("ApproveRegistration() error = %v", err)
	}
	if user.Username != "alice" || user.Role != models.RoleUser {
		t.Errorf("approved user = %+v", user)
	}
	f.login(t, "alice", userPassword)

	if _, err := f.m.ApproveRegistration(ctx, ownerName, "alice"); !errors.Is(err, ErrValidation) {
		t.Errorf("second ApproveRegistration() error = %v, want ErrValidation", err)
	}
}

func TestManager_RejectRegistration(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{site: models.SiteConfig{AllowRegistration: true, RequireApproval: true}})
	ctx := context.Background()
	if _, err := f.m.Register(ctx, RegisterRequest{Username: "alice", Password: userPassword, ConfirmPassword: userPassword}); err != nil {
		t.Fatal(err)
	}
	if err := f.m.RejectRegistration(ctx, ownerName, "alice"); err != nil {
		t.Fatalf("RejectRegistration() error = %v", err)
	}
	if pending, _ := f.m.ListPending(ctx); len(pending) != 0 {
		t.Errorf("ListPending() = %v after reject", pending)
	}
	if err := f.m.RejectRegistration(ctx, ownerName, "alice"); !errors.Is(err, ErrValidation) {
		t.Errorf("second RejectRegistration() error = %v, want ErrValidation", err)
	}
}

func TestManager_ChangePasswordEndsOtherSessions(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	ctx := context.Background()

	old := f.login(t, "alice", userPassword)
	if _, err := f.authenticate(old); err != nil {
		t.Fatal(err)
	}

	// Same wall-clock second as the login.
	f.clock.Advance(300 * time.Millisecond)
	const newPassword = "quiet-forest-77"
	fresh, err := f.m.ChangePassword(ctx, "alice", ChangePasswordRequest{OldPassword: userPassword, NewPassword: newPassword})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := f.authenticate(old); !errors.Is(err, ErrRevoked) {
		t.Errorf("old access token error = %v, want ErrRevoked", err)
	}
	if _, err := f.m.Refresh(ctx, old.Tokens.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Errorf("old refresh token error = %v, want ErrRevoked", err)
	}
	if _, err := f.authenticate(fresh); err != nil {
		t.Errorf("session issued by the change error = %v", err)
	}

	if _, err := f.m.Login(ctx, LoginRequest{Username: "alice", Password: userPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() with old password error = %v", err)
	}
	f.login(t, "alice", newPassword)
}

func TestManager_ChangePasswordRejections(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		req      ChangePasswordRequest
		want     error
	}{
		{"owner", ownerName, ChangePasswordRequest{OldPassword: ownerPassword, NewPassword: "quiet-forest-77"}, ErrForbidden},
		{"wrong old password", "alice", ChangePasswordRequest{OldPassword: "nope-nope-1", NewPassword: "quiet-forest-77"}, ErrInvalidCredentials},
		{"same password", "alice", ChangePasswordRequest{OldPassword: userPassword, NewPassword: userPassword}, ErrValidation},
		{"weak password", "alice", ChangePasswordRequest{OldPassword: userPassword, NewPassword: "abc"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.m.ChangePassword(ctx, tt.username, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("ChangePassword() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestManager_UpdateConfigRejectsInvalid(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice"})
	ctx := context.Background()
	before, _ := f.m.Snapshot(ctx)

	_, err := f.m.UpdateConfig(ctx, ownerName, func(s *models.ConfigSnapshot) error {
		s.FindUser("alice").Tags = []string{"ghost"}
		return nil
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("UpdateConfig() error = %v, want ErrValidation", err)
	}
	if !strings.Contains(PublicMessage(err), "ghost") {
		t.Errorf("PublicMessage() = %q, want the validation detail", PublicMessage(err))
	}
	after, _ := f.m.Snapshot(ctx)
	if after.Version != before.Version {
		t.Errorf("Version = %d, want unchanged %d", after.Version, before.Version)
	}

	_, err = f.m.UpdateConfig(ctx, ownerName, func(*models.ConfigSnapshot) error { return ErrForbidden })
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("UpdateConfig() passthrough error = %v, want ErrForbidden", err)
	}
}

func TestManager_MigrateLegacy(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	f.addUser(t, models.User{Username: "alice", EnabledAPIs: []string{"A", "ai-recommend"}})
	ctx := context.Background()
	res := f.login(t, "alice", userPassword)
	if _, err := f.authenticate(res); err != nil {
		t.Fatal(err)
	}

	result, err := f.m.MigrateLegacy(ctx, ownerName)
	if err != nil {
		t.Fatalf("MigrateLegacy() error = %v", err)
	}
	if !result.Success || len(result.ChangedUsers) != 1 {
		t.Errorf("MigrateLegacy() = %+v", result)
	}
	if f.ids.Len() != 0 {
		t.Error("migration did not clear the identity cache")
	}

	eff, _ := f.m.Effective(ctx, "alice")
	if !eff.Features.AIRecommend {
		t.Error("aiRecommend not set after migration")
	}
	if len(eff.EnabledSources) != 1 || eff.EnabledSources[0] != "A" {
		t.Errorf("EnabledSources = %v, want [A]", eff.EnabledSources)
	}

	version := mustVersion(t, f)
	again, err := f.m.MigrateLegacy(ctx, ownerName)
	if err != nil || again.Changed() {
		t.Errorf("second MigrateLegacy() = %+v, %v; want no change", again, err)
	}
	if mustVersion(t, f) != version {
		t.Error("a no-op migration wrote the configuration")
	}
}

func mustVersion(t *testing.T, f *managerFixture) int64 {
	t.Helper()
	snap, err := f.m.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return snap.Version
}

func TestManager_CreateUser(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	ctx := context.Background()
	_, err := f.m.UpdateConfig(ctx, ownerName, func(s *models.ConfigSnapshot) error {
		s.Tags = append(s.Tags, models.Tag{Name: "family"})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	u, err := f.m.CreateUser(ctx, ownerName, CreateUserRequest{Username: "alice", Password: userPassword, Tags: []string{"family"}})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.Role != models.RoleUser || !u.HasTag("family") {
		t.Errorf("CreateUser() = %+v, want role user with tag family", u)
	}
	f.login(t, "alice", userPassword)

	tests := []struct {
		name string
		req  CreateUserRequest
	}{
		{"existing name", CreateUserRequest{Username: "alice", Password: userPassword}},
		{"owner name", CreateUserRequest{Username: ownerName, Password: userPassword}},
		{"bad username", CreateUserRequest{Username: "a!", Password: userPassword}},
		{"unknown tag", CreateUserRequest{Username: "bob", Password: userPassword, Tags: []string{"nope"}}},
		{"missing password", CreateUserRequest{Username: "carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.m.CreateUser(ctx, ownerName, tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateUser() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestManager_DeleteUser(t *testing.T) {
	f := newManagerFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.addUser(t, models.User{Username: "alice"})
	res := f.login(t, "alice", userPassword)

	if err := f.m.DeleteUser(ctx, ownerName, "alice"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := f.authenticate(res); !IsRejection(err) {
		t.Errorf("Authenticate() after delete error = %v, want a rejection", err)
	}
	if _, err := f.m.Refresh(ctx, res.Tokens.RefreshToken); !IsRejection(err) {
		t.Errorf("Refresh() after delete error = %v, want a rejection", err)
	}

	if err := f.m.DeleteUser(ctx, ownerName, "alice"); !errors.Is(err, ErrValidation) {
		t.Errorf("DeleteUser(unknown) error = %v, want ErrValidation", err)
	}
	if err := f.m.DeleteUser(ctx, ownerName, ownerName); !errors.Is(err, ErrForbidden) {
		t.Errorf("DeleteUser(owner) error = %v, want ErrForbidden", err)
	}
}
