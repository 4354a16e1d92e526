// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/models"
)

// Migrate runs the legacy permission migration. A run with nothing to
// change answers 200 with an empty result; a failed run writes nothing.
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.manager.MigrateLegacy(r.Context(), caller.Username)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, res)
}

type siteRequest struct {
	Name                string `json:"siteName" validate:"max=100"`
	DisableYellowFilter bool   `json:"disableYellowFilter"`
	AllowRegistration   bool   `json:"allowRegistration"`
	RequireApproval     bool   `json:"requireApproval"`
}

// UpdateSite replaces the site settings.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req siteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	next, err := h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		s.Site = models.SiteConfig(req)
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, next.Site)
}

type sourcesRequest struct {
	Sources []models.VideoSource `json:"sources"`
}

// PutSources replaces the list of known video sources. Tags or users that
// still enable a removed key fail validation.
func (h *Handler) PutSources(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req sourcesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	next, err := h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		s.Sources = req.Sources
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, sourcesRequest{Sources: next.Sources})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// SetRole promotes or demotes an account. Ownership cannot be granted.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	username, err := pathUsername(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil || role == models.RoleOwner {
		respondError(w, r, fmt.Errorf("%w: role must be user or admin", auth.ErrValidation))
		return
	}

	var updated models.User
	_, err = h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		u, err := h.managedUser(s, caller, username)
		if err != nil {
			return err
		}
		u.Role = role
		updated = u.Clone()
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, updated)
}
