// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/tvbox"
)

// ReadinessCheck is one dependency probed by the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerConfig collects the dependencies of a Handler.
type HandlerConfig struct {
	Manager  *auth.Manager
	Guard    *auth.Guard
	Boxes    *tvbox.Guard
	Enforcer *authz.Enforcer

	// LoginLimiter throttles login and register per client IP. Optional.
	LoginLimiter *auth.IPRateLimiter

	Readiness []ReadinessCheck
	Version   string
}

// Handler serves every API endpoint.
type Handler struct {
	manager   *auth.Manager
	guard     *auth.Guard
	boxes     *tvbox.Guard
	enforcer  *authz.Enforcer
	loginRL   *auth.IPRateLimiter
	readiness []ReadinessCheck
	version   string
	startTime time.Time
}

// NewHandler validates cfg and creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Manager == nil || cfg.Guard == nil || cfg.Boxes == nil {
		return nil, errors.New("manager, guard and box-client guard are required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		manager:   cfg.Manager,
		guard:     cfg.Guard,
		boxes:     cfg.Boxes,
		enforcer:  cfg.Enforcer,
		loginRL:   cfg.LoginLimiter,
		readiness: cfg.Readiness,
		version:   cfg.Version,
		startTime: time.Now(),
	}, nil
}
