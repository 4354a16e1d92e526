// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package config

import (
	"strings"
	"testing"
)

func TestPasswordPolicyValidate(t *testing.T) {
	relaxed := RelaxedPasswordPolicy()
	strict := DefaultPasswordPolicy()

	tests := []struct {
		name     string
		policy   PasswordPolicy
		password string
		username string
		valid    bool
	}{
		{"relaxed ok", relaxed, "movienight42", "alice", true},
		{"too short", relaxed, "abc12", "alice", false},
		{"no digit", relaxed, "movienights", "alice", false},
		{"common", relaxed, "password123", "alice", false},
		{"contains username", relaxed, "alice2024x", "alice", false},
		{"reversed username", relaxed, "ecila2024x", "alice", false},
		{"leet username", relaxed, "x@l1c3x2024", "alice", false},
		{"too many repeats", relaxed, "moviiiiie42", "alice", false},
		{"too long", relaxed, strings.Repeat("a1", 40), "alice", false},
		{"strict ok", strict, "Movie-Night-2026!", "owner", true},
		{"strict no special", strict, "MovieNight2026", "owner", false},
		{"strict no upper", strict, "movie-night-2026!", "owner", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.policy.Validate(tt.password, tt.username)
			if result.Valid != tt.valid {
				t.Errorf("Validate(%q).Valid = %v, want %v (errors: %v)", tt.password, result.Valid, tt.valid, result.Errors)
			}
			if !result.Valid && len(result.Errors) == 0 {
				t.Error("invalid result carries no errors")
			}
		})
	}
}

func TestPasswordPolicyValidateWithError(t *testing.T) {
	err := RelaxedPasswordPolicy().ValidateWithError("short", "")
	if err == nil {
		t.Fatal("ValidateWithError() = nil, want error")
	}
	if !strings.Contains(err.Error(), "at least 8 characters") {
		t.Errorf("ValidateWithError() = %q, want length message", err)
	}
	if err := RelaxedPasswordPolicy().ValidateWithError("movienight42", "bob"); err != nil {
		t.Errorf("ValidateWithError() = %v, want nil", err)
	}
}

func TestLongestRun(t *testing.T) {
	tests := map[string]int{"": 0, "a": 1, "abc": 1, "aab": 2, "xaaaay": 4}
	for in, want := range tests {
		if got := longestRun(in); got != want {
			t.Errorf("longestRun(%q) = %d, want %d", in, got, want)
		}
	}
}
