// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package models

import (
	"time"
)

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
// It provides consistent structure for both successful and error responses.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "data": null,
//	  "error": {
//	    "code": "FORBIDDEN",
//	    "message": "Insufficient permissions"
//	  },
//	  "metadata": {"timestamp": "2026-01-28T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents an error response with structured error details.
//
// Common error codes:
//   - VALIDATION_ERROR: Invalid input parameters
//   - INVALID_CREDENTIALS: Username or password mismatch
//   - UNAUTHENTICATED / TOKEN_EXPIRED: Missing, invalid or expired session
//   - FORBIDDEN: Authenticated but role too low
//   - BANNED: Account disabled by an administrator
//   - RATE_LIMITED / DEVICE_CAPACITY_EXCEEDED: Box-client protocol rejections
//   - INTERNAL_ERROR: Store or cache unavailable
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is the readiness report.
type HealthStatus struct {
	Status   string            `json:"status"` // healthy or degraded
	AuthMode string            `json:"authMode"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks"`
	Uptime   float64           `json:"uptimeSeconds"`
}
