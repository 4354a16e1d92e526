// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/models"
)

func TestRespondData(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	respondData(rec, req, http.StatusCreated, map[string]string{"username": "alice"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}
	var body map[string]string
	env := decodeEnvelope(t, rec, &body)
	if env.Status != "success" || body["username"] != "alice" {
		t.Errorf("envelope = %+v %v", env, body)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), auth.ErrExpired)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("WWW-Authenticate missing on 401")
	}
	if code := errorCode(t, rec); code != "EXPIRED" {
		t.Errorf("code = %q, want EXPIRED", code)
	}
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte(`{"a":1}`))
	if a != generateETag([]byte(`{"a":1}`)) {
		t.Error("ETag is not stable")
	}
	if a == generateETag([]byte(`{"a":2}`)) {
		t.Error("different bodies share an ETag")
	}
	if !strings.HasPrefix(a, `"`) || !strings.HasSuffix(a, `"`) {
		t.Errorf("ETag %s is not quoted", a)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
	}{
		{"valid", "application/json", `{"username":"alice","password":"pw"}`, false},
		{"charset suffix", "application/json; charset=utf-8", `{"password":"pw"}`, false},
		{"empty body", "application/json", ``, true},
		{"malformed", "application/json", `{"username":`, true},
		{"unknown field", "application/json", `{"password":"pw","admin":true}`, true},
		{"wrong content type", "text/plain", `{"password":"pw"}`, true},
		{"fails validation", "application/json", `{"username":"alice"}`, true},
		{"too large", "application/json", `{"password":"` + strings.Repeat("x", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			var dst auth.LoginRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, auth.ErrValidation) {
				t.Errorf("decodeJSON() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestReadJSON_SkipsTagValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rateLimit":-5}`))
	req.Header.Set("Content-Type", "application/json")
	var cfg models.TVBoxSecurityConfig
	if err := readJSON(httptest.NewRecorder(), req, &cfg); err != nil {
		t.Fatalf("readJSON() error = %v", err)
	}
	if cfg.RateLimit != -5 {
		t.Errorf("RateLimit = %d, want -5", cfg.RateLimit)
	}
}
