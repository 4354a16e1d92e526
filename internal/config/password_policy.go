// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy defines requirements for password strength.
// Applied to the owner password at startup and to every password set
// through registration or password change.
type PasswordPolicy struct {
	MinLength int
	MaxLength int

	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool

	// MaxConsecutiveRepeats limits runs like "aaaa" (0 = disabled).
	MaxConsecutiveRepeats int

	ForbidCommonPasswords    bool
	ForbidUsernameSimilarity bool
}

// DefaultPasswordPolicy is used for the owner credential in production.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:                12,
		MaxLength:                72, // bcrypt input limit
		RequireUppercase:         true,
		RequireLowercase:         true,
		RequireDigit:             true,
		RequireSpecial:           true,
		MaxConsecutiveRepeats:    3,
		ForbidCommonPasswords:    true,
		ForbidUsernameSimilarity: true,
	}
}

// RelaxedPasswordPolicy is used for regular accounts.
func RelaxedPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:                8,
		MaxLength:                72,
		RequireLowercase:         true,
		RequireDigit:             true,
		MaxConsecutiveRepeats:    4,
		ForbidCommonPasswords:    true,
		ForbidUsernameSimilarity: true,
	}
}

// PasswordValidationResult lists every violated rule.
type PasswordValidationResult struct {
	Valid  bool
	Errors []string
}

func (r *PasswordValidationResult) fail(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

type charClasses struct {
	upper, lower, digit, special bool
}

func analyzeCharClasses(password string) charClasses {
	var cc charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			cc.upper = true
		case unicode.IsLower(r):
			cc.lower = true
		case unicode.IsDigit(r):
			cc.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			cc.special = true
		}
	}
	return cc
}

func longestRun(password string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range password {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}

// Validate checks password against every rule of the policy.
func (p PasswordPolicy) Validate(password, username string) PasswordValidationResult {
	result := PasswordValidationResult{Valid: true}

	if len(password) < p.MinLength {
		result.fail(fmt.Sprintf("password must be at least %d characters (got %d)", p.MinLength, len(password)))
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		result.fail(fmt.Sprintf("password must be at most %d bytes", p.MaxLength))
	}

	cc := analyzeCharClasses(password)
	if p.RequireUppercase && !cc.upper {
		result.fail("password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !cc.lower {
		result.fail("password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !cc.digit {
		result.fail("password must contain at least one digit")
	}
	if p.RequireSpecial && !cc.special {
		result.fail("password must contain at least one special character")
	}

	if p.MaxConsecutiveRepeats > 0 && longestRun(password) > p.MaxConsecutiveRepeats {
		result.fail(fmt.Sprintf("password cannot have more than %d consecutive repeated characters", p.MaxConsecutiveRepeats))
	}
	if p.ForbidCommonPasswords && isCommonPassword(password) {
		result.fail("password is too common and easily guessable")
	}
	if p.ForbidUsernameSimilarity && username != "" && isSimilarToUsername(password, username) {
		result.fail("password is too similar to username")
	}

	return result
}

// ValidateWithError joins all violations into one error.
func (p PasswordPolicy) ValidateWithError(password, username string) error {
	result := p.Validate(password, username)
	if !result.Valid {
		return errors.New(strings.Join(result.Errors, "; "))
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"123456": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {}, "p@ssw0rd": {},
	"qwerty": {}, "qwerty123": {}, "abc123": {}, "abcd1234": {}, "1q2w3e4r": {},
	"letmein": {}, "welcome": {}, "welcome1": {}, "welcome123": {}, "iloveyou": {},
	"admin": {}, "admin123": {}, "administrator": {}, "root": {}, "changeme": {},
	"secret": {}, "default": {}, "guest": {}, "test123": {}, "11111111": {},
	"00000000": {}, "dragon": {}, "monkey": {}, "sunshine": {}, "trustno1": {},
	"reelgate": {}, "reelgate1": {}, "tvbox123": {}, "movie123": {}, "video123": {},
	"netflix1": {}, "streaming": {}, "homelab": {},
}

func isCommonPassword(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

var leetSubstitutions = strings.NewReplacer("a", "@", "e", "3", "i", "1", "o", "0", "s", "$", "t", "7")

func isSimilarToUsername(password, username string) bool {
	pass := strings.ToLower(password)
	user := strings.ToLower(username)

	if strings.Contains(pass, user) || strings.Contains(user, pass) {
		return true
	}

	runes := []rune(user)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	if strings.Contains(pass, string(runes)) {
		return true
	}

	return strings.Contains(pass, leetSubstitutions.Replace(user))
}
