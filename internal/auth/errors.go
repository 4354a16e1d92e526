// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"errors"
	"net/http"
)

// Authentication and authorization failures. Every rejection the core
// produces wraps exactly one of these; anything else is an internal error.
var (
	ErrInvalidCredentials     = errors.New("invalid username or password")
	ErrBanned                 = errors.New("account is banned")
	ErrExpired                = errors.New("credential expired")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid token")
	ErrRevoked                = errors.New("credential revoked")
	ErrForbidden              = errors.New("insufficient permissions")
	ErrLocked                 = errors.New("account temporarily locked due to too many failed attempts")
	ErrRegistrationClosed     = errors.New("registration is closed")
	ErrValidation             = errors.New("invalid request")
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrDeviceCapacityExceeded = errors.New("device limit reached for this account")
	ErrInternal               = errors.New("internal error")
)

type errorClass struct {
	err    error
	status int
	code   string
}

// Order matters only for errors that wrap more than one sentinel.
var errorClasses = []errorClass{
	{ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
	{ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrRegistrationClosed, http.StatusBadRequest, "REGISTRATION_CLOSED"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrExpired, http.StatusUnauthorized, "EXPIRED"},
	{ErrRevoked, http.StatusUnauthorized, "REVOKED"},
	{ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN"},
	{ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{ErrBanned, http.StatusForbidden, "BANNED"},
	{ErrLocked, http.StatusForbidden, "LOCKED"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrRateLimited, http.StatusForbidden, "RATE_LIMITED"},
	{ErrDeviceCapacityExceeded, http.StatusForbidden, "DEVICE_CAPACITY_EXCEEDED"},
}

func classify(err error) errorClass {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c
		}
	}
	return errorClass{ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR"}
}

// StatusCode maps an error onto the HTTP status the API answers with.
// A nil error maps to 200.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return classify(err).status
}

// ErrorCode returns the machine-readable code for err.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return classify(err).code
}

// PublicMessage returns the message safe to show a client. Most classes
// collapse to their fixed text so store or cache details never leak.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	c := classify(err)
	switch c.err {
	case ErrValidation, ErrLocked:
		// Built by this package from fixed text; safe to echo.
		return err.Error()
	}
	return c.err.Error()
}

// IsRejection reports whether err is a typed rejection rather than a
// system failure.
func IsRejection(err error) bool {
	return err != nil && StatusCode(err) < http.StatusInternalServerError
}

// internal wraps an unexpected failure so it classifies as ErrInternal
// while keeping the cause for logs.
func internal(op string, err error) error {
	return &internalError{op: op, cause: err}
}

type internalError struct {
	op    string
	cause error
}

func (e *internalError) Error() string { return e.op + ": " + e.cause.Error() }

func (e *internalError) Unwrap() []error { return []error{ErrInternal, e.cause} }
