// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/store"
	"github.com/tomtom215/reelgate/internal/tvbox"
)

const (
	ownerName     = "boss"
	ownerPassword = "Owner-Pass-123!"
	userPassword  = "sunny-river-42"
	aliceBoxToken = "alice-box-token-0001"
)

type apiFixture struct {
	t       *testing.T
	store   *store.MemoryStore
	handler http.Handler
}

type apiOptions struct {
	site      models.SiteConfig
	readiness []ReadinessCheck
}

func newAPIFixture(t *testing.T, opts apiOptions) *apiFixture {
	t.Helper()
	ctx := context.Background()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	seed := models.NewConfigSnapshot()
	seed.Site = opts.site
	seed.Sources = []models.VideoSource{
		{Key: "alpha", Name: "Alpha"},
		{Key: "beta", Name: "Beta"},
		{Key: "gamma", Name: "Gamma", Disabled: true},
	}
	seed.Tags = []models.Tag{{Name: "family", EnabledAPIs: []string{"alpha"}}}
	st := store.NewMemoryStore(store.Options{Hasher: hasher, Seed: seed})

	for _, u := range []models.User{
		{Username: "alice", Role: models.RoleUser, Tags: []string{"family"}},
		{Username: "adam", Role: models.RoleAdmin},
		{Username: "ada", Role: models.RoleAdmin},
		{Username: "mallory", Role: models.RoleUser, Banned: true},
	} {
		if err := st.CreateUser(ctx, u, userPassword); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", u.Username, err)
		}
	}
	_, err := st.Update(ctx, func(s *models.ConfigSnapshot) error {
		s.TVBox = models.TVBoxSecurityConfig{
			EnableAuth:          true,
			EnableRateLimit:     true,
			RateLimit:           100,
			EnableDeviceBinding: true,
			MaxDevices:          1,
			UserTokens:          []models.UserToken{{Username: "alice", Token: aliceBoxToken, Enabled: true}},
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	codec, err := auth.NewTokenCodec(auth.CodecConfig{
		Secret:     []byte("router-test-secret-0123456789abcdef"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Rotate:     true,
	}, auth.NewMemoryRefreshStore())
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	owner, err := auth.NewOwnerCredential(ownerName, ownerPassword, hasher)
	if err != nil {
		t.Fatal(err)
	}
	manager, err := auth.NewManager(auth.ManagerConfig{
		Mode:        config.AuthModeMulti,
		Owner:       owner,
		IdentityTTL: time.Minute,
	}, codec, st, cache.New(time.Minute), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{CacheEnabled: true, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}

	h, err := NewHandler(HandlerConfig{
		Manager:      manager,
		Guard:        auth.NewGuard(manager, false),
		Boxes:        tvbox.NewGuard(st, tvbox.NewMemoryLimiter(time.Minute)),
		Enforcer:     enforcer,
		LoginLimiter: auth.NewIPRateLimiter(600, 100),
		Readiness:    opts.readiness,
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return &apiFixture{t: t, store: st, handler: NewRouter(h, RouterConfig{}).SetupChi()}
}

type requestOption func(*http.Request)

func bearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func header(k, v string) requestOption {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withCookies(cookies ...*http.Cookie) requestOption {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func (f *apiFixture) do(method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec, nil)
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *apiFixture) login(username, password string) (sessionResponse, *httptest.ResponseRecorder) {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username, "password": password})
	if rec.Code != http.StatusOK {
		f.t.Fatalf("login(%s) status = %d, body %s", username, rec.Code, rec.Body.String())
	}
	var s sessionResponse
	decodeEnvelope(f.t, rec, &s)
	return s, rec
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	if rec := f.do(http.MethodGet, "/api/v1/health/live", nil); rec.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/health/ready", nil)
	var health models.HealthStatus
	decodeEnvelope(t, rec, &health)
	if rec.Code != http.StatusOK || health.Checks["store"] != "ok" {
		t.Errorf("ready = %d %+v, want 200 with store ok", rec.Code, health)
	}

	failing := newAPIFixture(t, apiOptions{readiness: []ReadinessCheck{{
		Name:  "redis",
		Check: func(context.Context) error { return errors.New("dial tcp: refused") },
	}}})
	rec = failing.do(http.MethodGet, "/api/v1/health/ready", nil)
	decodeEnvelope(t, rec, &health)
	if rec.Code != http.StatusServiceUnavailable || health.Checks["redis"] != "unavailable" {
		t.Errorf("ready with failing check = %d %+v, want 503 with redis unavailable", rec.Code, health)
	}
}

func TestRouter_LoginMeAndPermissions(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	session, rec := f.login("alice", userPassword)

	if session.Identity.Username != "alice" || session.Identity.Role != models.RoleUser {
		t.Errorf("login identity = %+v, want alice/user", session.Identity)
	}
	for _, name := range []string{auth.AccessCookie, auth.RefreshCookie, auth.SignatureCookie} {
		if c := cookieNamed(rec, name); c == nil || !c.HttpOnly {
			t.Errorf("cookie %s = %+v, want an HttpOnly cookie", name, c)
		}
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	rec = f.do(http.MethodGet, "/api/v1/auth/me", nil, bearer(session.AccessToken))
	var id models.Identity
	decodeEnvelope(t, rec, &id)
	if rec.Code != http.StatusOK || id.Username != "alice" {
		t.Errorf("me = %d %+v, want 200 alice", rec.Code, id)
	}

	// The access cookie alone also authenticates.
	rec = f.do(http.MethodGet, "/api/v1/auth/me", nil, withCookies(&http.Cookie{Name: auth.AccessCookie, Value: session.AccessToken}))
	if rec.Code != http.StatusOK {
		t.Errorf("me via cookie status = %d, want 200", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/v1/permissions", nil, bearer(session.AccessToken))
	var eff models.EffectivePermissions
	decodeEnvelope(t, rec, &eff)
	if rec.Code != http.StatusOK || len(eff.EnabledSources) != 1 || eff.EnabledSources[0] != "alpha" {
		t.Errorf("permissions = %d %+v, want enabled sources [alpha]", rec.Code, eff)
	}
	if !eff.FilterAdultContent {
		t.Error("FilterAdultContent = false, want true by default")
	}
}

func TestRouter_LoginRejections(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "nope-nope-nope"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", map[string]string{"username": "zed", "password": userPassword}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"banned", map[string]string{"username": "mallory", "password": userPassword}, http.StatusForbidden, "BANNED"},
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", map[string]string{"username": "alice", "password": userPassword, "role": "owner"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{"username":`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/auth/login", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			if cookieNamed(rec, auth.AccessCookie) != nil {
				t.Error("rejected login set a session cookie")
			}
		})
	}
}

func TestRouter_RoleGuards(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	alice, _ := f.login("alice", userPassword)
	adam, _ := f.login("adam", userPassword)
	boss, _ := f.login(ownerName, ownerPassword)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"anonymous admin", http.MethodGet, "/api/v1/admin/users", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/admin/users", "not-a-jwt", http.StatusUnauthorized},
		{"user on admin", http.MethodGet, "/api/v1/admin/users", alice.AccessToken, http.StatusForbidden},
		{"admin on admin", http.MethodGet, "/api/v1/admin/users", adam.AccessToken, http.StatusOK},
		{"owner on admin", http.MethodGet, "/api/v1/admin/users", boss.AccessToken, http.StatusOK},
		{"admin on owner", http.MethodPost, "/api/v1/owner/migrate", adam.AccessToken, http.StatusForbidden},
		{"owner on owner", http.MethodPost, "/api/v1/owner/migrate", boss.AccessToken, http.StatusOK},
		{"anonymous permissions", http.MethodGet, "/api/v1/permissions", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []requestOption
			if tt.token != "" {
				opts = append(opts, bearer(tt.token))
			}
			rec := f.do(tt.method, tt.path, nil, opts...)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_AdminScope(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	adam, _ := f.login("adam", userPassword)
	boss, _ := f.login(ownerName, ownerPassword)

	// Admins edit plain users.
	rec := f.do(http.MethodPut, "/api/v1/admin/users/alice", map[string]interface{}{
		"enabledApis": []string{"beta"},
		"features":    map[string]bool{"aiRecommend": true},
	}, bearer(adam.AccessToken))
	var alice models.User
	decodeEnvelope(t, rec, &alice)
	if rec.Code != http.StatusOK || len(alice.EnabledAPIs) != 1 || !alice.Features.AIRecommend {
		t.Fatalf("update alice = %d %+v", rec.Code, alice)
	}
	if alice.PermissionVersion == 0 {
		t.Error("PermissionVersion not bumped by a permission edit")
	}

	// ...but not other admins, and never the owner.
	for _, path := range []string{"/api/v1/admin/users/ada/ban", "/api/v1/admin/users/" + ownerName + "/ban"} {
		if rec := f.do(http.MethodPost, path, nil, bearer(adam.AccessToken)); rec.Code != http.StatusForbidden {
			t.Errorf("admin POST %s status = %d, want 403", path, rec.Code)
		}
	}
	if rec := f.do(http.MethodPost, "/api/v1/admin/users/ada/ban", nil, bearer(boss.AccessToken)); rec.Code != http.StatusOK {
		t.Errorf("owner ban admin status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodPut, "/api/v1/admin/users/nobody", map[string]interface{}{"tags": []string{}}, bearer(boss.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Errorf("update unknown user status = %d, want 400", rec.Code)
	}
	if rec := f.do(http.MethodPut, "/api/v1/admin/users/alice", map[string]interface{}{"tags": []string{"ghost"}}, bearer(adam.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Errorf("update with unknown tag status = %d, want 400", rec.Code)
	}
}

func TestRouter_RoleChangeTakesEffect(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	alice, _ := f.login("alice", userPassword)
	boss, _ := f.login(ownerName, ownerPassword)

	if rec := f.do(http.MethodGet, "/api/v1/admin/users", nil, bearer(alice.AccessToken)); rec.Code != http.StatusForbidden {
		t.Fatalf("before promotion status = %d, want 403", rec.Code)
	}
	rec := f.do(http.MethodPut, "/api/v1/owner/roles/alice", map[string]string{"role": "admin"}, bearer(boss.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("promote status = %d (%s)", rec.Code, rec.Body.String())
	}
	// The same access token now carries the new role.
	if rec := f.do(http.MethodGet, "/api/v1/admin/users", nil, bearer(alice.AccessToken)); rec.Code != http.StatusOK {
		t.Errorf("after promotion status = %d, want 200", rec.Code)
	}

	if rec := f.do(http.MethodPut, "/api/v1/owner/roles/alice", map[string]string{"role": "owner"}, bearer(boss.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Errorf("grant owner status = %d, want 400", rec.Code)
	}
}

func TestRouter_RefreshRotationAndLogout(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	_, rec := f.login("alice", userPassword)
	first := cookieNamed(rec, auth.RefreshCookie)

	rec = f.do(http.MethodPost, "/api/v1/auth/refresh", nil, withCookies(first))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d (%s)", rec.Code, rec.Body.String())
	}
	second := cookieNamed(rec, auth.RefreshCookie)
	if second == nil || second.Value == first.Value {
		t.Fatal("refresh did not rotate the refresh token")
	}

	// Replaying the rotated token is rejected.
	if rec := f.do(http.MethodPost, "/api/v1/auth/refresh", nil, withCookies(first)); rec.Code != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/auth/refresh", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh without token status = %d, want 401", rec.Code)
	}

	// Logout always succeeds and clears the cookies.
	session, rec := f.login("alice", userPassword)
	refresh := cookieNamed(rec, auth.RefreshCookie)
	rec = f.do(http.MethodPost, "/api/v1/auth/logout", nil, bearer(session.AccessToken), withCookies(refresh))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if c := cookieNamed(rec, auth.AccessCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("logout access cookie = %+v, want expired", c)
	}
	if rec := f.do(http.MethodPost, "/api/v1/auth/refresh", nil, withCookies(refresh)); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/auth/logout", nil); rec.Code != http.StatusOK {
		t.Errorf("anonymous logout status = %d, want 200", rec.Code)
	}
}

func TestRouter_Check(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	_, rec := f.login("alice", userPassword)
	sig := cookieNamed(rec, auth.SignatureCookie)

	rec = f.do(http.MethodGet, "/api/v1/auth/check", nil, withCookies(sig))
	var body map[string]string
	decodeEnvelope(t, rec, &body)
	if rec.Code != http.StatusOK || body["username"] != "alice" {
		t.Errorf("check = %d %v, want 200 alice", rec.Code, body)
	}

	if rec := f.do(http.MethodGet, "/api/v1/auth/check", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("check without cookie status = %d, want 401", rec.Code)
	}
	forged := &http.Cookie{Name: auth.SignatureCookie, Value: "adam." + "00"}
	if rec := f.do(http.MethodGet, "/api/v1/auth/check", nil, withCookies(forged)); rec.Code != http.StatusUnauthorized {
		t.Errorf("check with forged signature status = %d, want 401", rec.Code)
	}
}

func TestRouter_RegistrationWithApproval(t *testing.T) {
	f := newAPIFixture(t, apiOptions{site: models.SiteConfig{AllowRegistration: true, RequireApproval: true}})
	adam, _ := f.login("adam", userPassword)

	rec := f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "newbie", "password": userPassword, "confirmPassword": userPassword, "reason": "family",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register status = %d (%s)", rec.Code, rec.Body.String())
	}
	if cookieNamed(rec, auth.AccessCookie) != nil {
		t.Error("pending registration issued a session")
	}

	rec = f.do(http.MethodGet, "/api/v1/admin/registrations", nil, bearer(adam.AccessToken))
	var pending []models.PendingUser
	decodeEnvelope(t, rec, &pending)
	if len(pending) != 1 || pending[0].Username != "newbie" {
		t.Fatalf("registrations = %+v, want [newbie]", pending)
	}

	if rec := f.do(http.MethodPost, "/api/v1/admin/registrations/newbie/approve", nil, bearer(adam.AccessToken)); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d (%s)", rec.Code, rec.Body.String())
	}
	f.login("newbie", userPassword)

	if rec := f.do(http.MethodPost, "/api/v1/admin/registrations/ghost/reject", nil, bearer(adam.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Errorf("reject unknown status = %d, want 400", rec.Code)
	}
}

func TestRouter_RegistrationClosed(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	rec := f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "newbie", "password": userPassword, "confirmPassword": userPassword,
	})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "REGISTRATION_CLOSED" {
		t.Errorf("register = %d %s, want 400 REGISTRATION_CLOSED", rec.Code, rec.Body.String())
	}
}

func TestRouter_AdminCreateAndDeleteUser(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	adam, _ := f.login("adam", userPassword)

	rec := f.do(http.MethodPost, "/api/v1/admin/users", map[string]interface{}{
		"username": "carol", "password": userPassword, "tags": []string{"family"},
	}, bearer(adam.AccessToken))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	carol, _ := f.login("carol", userPassword)

	if rec := f.do(http.MethodDelete, "/api/v1/admin/users/ada", nil, bearer(adam.AccessToken)); rec.Code != http.StatusForbidden {
		t.Errorf("admin deletes admin status = %d, want 403", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/admin/users/carol", nil, bearer(adam.AccessToken)); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/api/v1/auth/me", nil, bearer(carol.AccessToken)); rec.Code != http.StatusUnauthorized {
		t.Errorf("deleted user's token status = %d, want 401", rec.Code)
	}
}

func TestRouter_TagsAndValidation(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	adam, _ := f.login("adam", userPassword)

	// Dropping a tag still referenced by alice is refused.
	rec := f.do(http.MethodPut, "/api/v1/admin/tags", map[string]interface{}{"tags": []models.Tag{}}, bearer(adam.AccessToken))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("drop referenced tag status = %d, want 400", rec.Code)
	}

	rec = f.do(http.MethodPut, "/api/v1/admin/tags", map[string]interface{}{"tags": []models.Tag{
		{Name: "family", EnabledAPIs: []string{"alpha", "beta"}},
		{Name: "kids"},
	}}, bearer(adam.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("put tags status = %d (%s)", rec.Code, rec.Body.String())
	}

	candidate := models.NewConfigSnapshot()
	candidate.Users = []models.User{{Username: "zed", Tags: []string{"missing"}}}
	rec = f.do(http.MethodPost, "/api/v1/admin/config/validate", candidate, bearer(adam.AccessToken))
	var res authz.ValidationResult
	decodeEnvelope(t, rec, &res)
	if rec.Code != http.StatusOK || res.Valid || len(res.Errors) == 0 {
		t.Errorf("validate candidate = %d %+v, want findings", rec.Code, res)
	}

	rec = f.do(http.MethodPost, "/api/v1/admin/config/validate", nil, bearer(adam.AccessToken))
	decodeEnvelope(t, rec, &res)
	if !res.Valid {
		t.Errorf("current configuration invalid: %v", res.Errors)
	}
}

func TestRouter_OwnerSiteAndSources(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	boss, _ := f.login(ownerName, ownerPassword)
	alice, _ := f.login("alice", userPassword)

	rec := f.do(http.MethodPut, "/api/v1/owner/site", map[string]interface{}{
		"siteName": "Den", "disableYellowFilter": true, "allowRegistration": true,
	}, bearer(boss.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("site status = %d (%s)", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodGet, "/api/v1/permissions", nil, bearer(alice.AccessToken))
	var eff models.EffectivePermissions
	decodeEnvelope(t, rec, &eff)
	if eff.FilterAdultContent {
		t.Error("FilterAdultContent = true after the site-wide switch")
	}

	// alpha is still granted by the family tag.
	rec = f.do(http.MethodPut, "/api/v1/owner/sources", map[string]interface{}{"sources": []models.VideoSource{{Key: "beta"}}}, bearer(boss.AccessToken))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("remove referenced source status = %d, want 400", rec.Code)
	}
}

func TestRouter_BoxProtocol(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	token := header(tvbox.HeaderToken, aliceBoxToken)

	rec := f.do(http.MethodGet, "/tvbox/config", nil, token, header(tvbox.HeaderDeviceID, "box-1"))
	var cfg boxConfig
	decodeEnvelope(t, rec, &cfg)
	if rec.Code != http.StatusOK || cfg.Username != "alice" || !cfg.Bound {
		t.Fatalf("first use = %d %+v, want 200 bound to alice", rec.Code, cfg)
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Key != "alpha" || cfg.Sites[0].Name != "Alpha" {
		t.Errorf("sites = %+v, want [alpha]", cfg.Sites)
	}

	rec = f.do(http.MethodGet, "/tvbox/config", nil, token, header(tvbox.HeaderDeviceID, "box-2"))
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "DEVICE_CAPACITY_EXCEEDED" {
		t.Errorf("second device = %d %s, want 403 DEVICE_CAPACITY_EXCEEDED", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPost, "/tvbox/devices/rebind", nil, token, header(tvbox.HeaderDeviceID, "box-2"))
	var rb rebindResponse
	decodeEnvelope(t, rec, &rb)
	if rec.Code != http.StatusOK || len(rb.Evicted) != 1 || rb.Evicted[0] != "box-1" {
		t.Fatalf("rebind = %d %+v, want box-1 evicted", rec.Code, rb)
	}
	if rec := f.do(http.MethodGet, "/tvbox/config", nil, token, header(tvbox.HeaderDeviceID, "box-2")); rec.Code != http.StatusOK {
		t.Errorf("rebound device status = %d, want 200", rec.Code)
	}

	if rec := f.do(http.MethodGet, "/tvbox/config", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/tvbox/devices/rebind", nil, header(tvbox.HeaderDeviceID, "box-3")); rec.Code != http.StatusUnauthorized {
		t.Errorf("rebind without token status = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/tvbox/config?token=wrong-token-000", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token status = %d, want 401", rec.Code)
	}
}

func TestRouter_AdminTVBox(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	adam, _ := f.login("adam", userPassword)
	f.do(http.MethodGet, "/tvbox/config", nil, header(tvbox.HeaderToken, aliceBoxToken), header(tvbox.HeaderDeviceID, "box-1"))

	// Editing switches keeps existing bindings when devices are omitted.
	rec := f.do(http.MethodPut, "/api/v1/admin/tvbox", map[string]interface{}{
		"enableAuth": true, "enableRateLimit": true, "rateLimit": 50,
		"enableDeviceBinding": true, "maxDevices": 3,
		"userTokens": []map[string]interface{}{{"username": "alice", "token": aliceBoxToken, "enabled": true}},
	}, bearer(adam.AccessToken))
	var got models.TVBoxSecurityConfig
	decodeEnvelope(t, rec, &got)
	if rec.Code != http.StatusOK || got.MaxDevices != 3 || len(got.UserTokens) != 1 || len(got.UserTokens[0].Devices) != 1 {
		t.Fatalf("put tvbox = %d %+v", rec.Code, got)
	}

	rec = f.do(http.MethodPut, "/api/v1/admin/tvbox", map[string]interface{}{
		"enableRateLimit": true, "rateLimit": 0,
	}, bearer(adam.AccessToken))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("rate limit 0 status = %d, want 400", rec.Code)
	}

	if rec := f.do(http.MethodPost, "/api/v1/admin/tvbox/ratelimit/reset", map[string]string{"identifier": "alice"}, bearer(adam.AccessToken)); rec.Code != http.StatusOK {
		t.Errorf("reset status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/admin/tvbox/devices/alice/box-1", nil, bearer(adam.AccessToken)); rec.Code != http.StatusOK {
		t.Errorf("remove device status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/admin/tvbox/devices/alice/box-1", nil, bearer(adam.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Errorf("remove missing device status = %d, want 400", rec.Code)
	}
	rec = f.do(http.MethodDelete, "/api/v1/admin/tvbox/devices/alice", nil, bearer(adam.AccessToken))
	var cleared map[string]int
	decodeEnvelope(t, rec, &cleared)
	if rec.Code != http.StatusOK || cleared["removed"] != 0 {
		t.Errorf("clear devices = %d %v, want 0 removed", rec.Code, cleared)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	rec := f.do(http.MethodGet, "/api/v1/nope", nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("unknown route = %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodGet, "/api/v1/auth/login", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET login status = %d, want 405", rec.Code)
	}
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t, apiOptions{})
	rec := f.do(http.MethodGet, "/api/v1/health/live", nil, header("X-Request-ID", "trace-42"))
	if got := rec.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", got)
	}
}
