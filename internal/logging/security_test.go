// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"short", "***"},
		{"exactlytwelv", "***"},
		{"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9", "eyJh...VCJ9"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.input); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"ab", "***"},
		{"alice", "al***"},
	}
	for _, tt := range tests {
		if got := SanitizeUsername(tt.input); got != tt.want {
			t.Errorf("SanitizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError("invalid password for alice"); got != "authentication error" {
		t.Errorf("SanitizeError() = %q, want generic message", got)
	}
	if got := SanitizeError("user is banned"); got != "user is banned" {
		t.Errorf("SanitizeError() = %q, want passthrough", got)
	}
	long := strings.Repeat("x", 250)
	if got := SanitizeError(long); len(got) != 203 {
		t.Errorf("len(SanitizeError(long)) = %d, want 203", len(got))
	}
}

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	if got := SanitizeValue("refresh_token", "0123456789abcdefghij"); got != "0123...ghij" {
		t.Errorf("SanitizeValue(refresh_token) = %q", got)
	}
	if got := SanitizeValue("role", "admin"); got != "admin" {
		t.Errorf("SanitizeValue(role) = %q, want admin", got)
	}
}

func TestSecurityLoggerLoginFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sl := NewSecurityLoggerWithLogger(NewTestLogger(&buf))
	sl.LogLoginFailure("alice", "10.0.0.1", "curl/8", "INVALID_CREDENTIALS")

	output := buf.String()
	for _, want := range []string{
		`"component":"security"`,
		`"event":"login_failed"`,
		`"status":"failed"`,
		`"username":"al***"`,
		`"level":"warn"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestSecurityLoggerMasksDetails(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sl := NewSecurityLoggerWithLogger(NewTestLogger(&buf))
	sl.LogAdminAction(EventTVBoxAdmin, "owner", "alice", map[string]string{
		"token":  "abcdefghijklmnopqrstuvwxyz",
		"action": "reset_rate_limit",
	})

	output := buf.String()
	if strings.Contains(output, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("raw token leaked: %s", output)
	}
	if !strings.Contains(output, `"action":"reset_rate_limit"`) {
		t.Errorf("output missing action: %s", output)
	}
}
