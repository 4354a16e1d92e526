// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/models"
)

const readinessTimeout = 2 * time.Second

// Live answers as long as the process serves HTTP.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready probes the configuration store and every registered dependency.
// Any failure answers 503 with the failing check marked.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	health := models.HealthStatus{
		Status:   "healthy",
		AuthMode: h.manager.Mode(),
		Version:  h.version,
		Checks:   map[string]string{},
		Uptime:   time.Since(h.startTime).Seconds(),
	}

	checks := append([]ReadinessCheck{{Name: "store", Check: func(ctx context.Context) error {
		_, err := h.manager.Snapshot(ctx)
		return err
	}}}, h.readiness...)
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			health.Status = "degraded"
			health.Checks[c.Name] = "unavailable"
			logging.Ctx(ctx).Warn().Str("check", c.Name).Str("error", logging.SanitizeError(err.Error())).Msg("Readiness check failed")
			continue
		}
		health.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	respondData(w, r, status, health)
}
