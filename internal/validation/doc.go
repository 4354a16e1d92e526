// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Package validation wraps go-playground/validator v10 in a process-wide
// singleton and translates failures into the API error envelope.
//
// Field names in messages are the JSON names of the request body. Besides
// the built-in tags, three custom tags are registered:
//
//	username   ^[a-zA-Z0-9._-]{3,32}$
//	role       user, admin or owner (case-insensitive)
//	sourcekey  ^[a-zA-Z0-9_-]{1,64}$
//
// Example:
//
//	type registerRequest struct {
//	    Username        string `json:"username" validate:"required,username"`
//	    Password        string `json:"password" validate:"required,min=8,max=72"`
//	    ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
//	}
package validation
