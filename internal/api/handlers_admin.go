// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/validation"
)

var errUnknownUser = fmt.Errorf("%w: unknown user", auth.ErrValidation)

// pathUsername reads and checks the {username} route parameter.
func pathUsername(r *http.Request) (string, error) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if verr := validation.ValidateVar("username", username, "required,max=64"); verr != nil {
		return "", fmt.Errorf("%w: %s", auth.ErrValidation, strings.Join(verr.Messages(), "; "))
	}
	return username, nil
}

// actor returns the caller's identity. Routes using it sit behind the guard.
func actor(r *http.Request) (models.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return models.Identity{}, auth.ErrUnauthenticated
	}
	return id, nil
}

// managedUser returns the stored user the caller may manage in s.
func (h *Handler) managedUser(s *models.ConfigSnapshot, caller models.Identity, username string) (*models.User, error) {
	target := h.manager.Resolver().ResolveRole(s, username)
	if !authz.CanManage(caller.Role, target) {
		return nil, fmt.Errorf("%w: cannot manage this account", auth.ErrForbidden)
	}
	u := s.FindUser(username)
	if u == nil {
		return nil, errUnknownUser
	}
	return u, nil
}

type usersResponse struct {
	Owner string        `json:"owner"`
	Users []models.User `json:"users"`
}

// ListUsers returns every stored account.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, usersResponse{Owner: h.manager.OwnerUsername(), Users: snap.Users})
}

// CreateUser adds an account with role user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req auth.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.manager.CreateUser(r.Context(), caller.Username, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusCreated, user)
}

// updateUserRequest changes permission fields. Absent fields keep their
// value; an empty list or empty flag set means "inherit from tags".
type updateUserRequest struct {
	Tags        *[]string            `json:"tags"`
	EnabledAPIs *[]string            `json:"enabledApis"`
	Features    *models.FeatureFlags `json:"features"`
}

// UpdateUser edits the permission fields of an account.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
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
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var updated models.User
	_, err = h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		u, err := h.managedUser(s, caller, username)
		if err != nil {
			return err
		}
		if req.Tags != nil {
			u.Tags = *req.Tags
		}
		if req.EnabledAPIs != nil {
			u.EnabledAPIs = *req.EnabledAPIs
		}
		if req.Features != nil {
			u.Features = *req.Features
		}
		updated = u.Clone()
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, updated)
}

// DeleteUser removes an account and ends its sessions.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
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
	snap, err := h.manager.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.managedUser(snap, caller, username); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.manager.DeleteUser(r.Context(), caller.Username, username); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"deleted": username})
}

// BanUser disables an account. Its sessions end at the next request.
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// UnbanUser re-enables an account.
func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
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
	var updated models.User
	_, err = h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		u, err := h.managedUser(s, caller, username)
		if err != nil {
			return err
		}
		u.Banned = banned
		updated = u.Clone()
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, updated)
}

type tagsRequest struct {
	Tags []models.Tag `json:"tags" validate:"dive"`
}

// GetTags returns every tag.
func (h *Handler) GetTags(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, tagsRequest{Tags: snap.Tags})
}

// PutTags replaces the tag list. Removing a tag still referenced by a
// user fails configuration validation.
func (h *Handler) PutTags(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req tagsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Tags == nil {
		req.Tags = []models.Tag{}
	}
	next, err := h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		s.Tags = req.Tags
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, tagsRequest{Tags: next.Tags})
}

// ListRegistrations returns pending registrations, oldest first.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.manager.ListPending(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if pending == nil {
		pending = []models.PendingUser{}
	}
	respondData(w, r, http.StatusOK, pending)
}

// ApproveRegistration activates a pending registration.
func (h *Handler) ApproveRegistration(w http.ResponseWriter, r *http.Request) {
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
	user, err := h.manager.ApproveRegistration(r.Context(), caller.Username, username)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, user)
}

// RejectRegistration drops a pending registration.
func (h *Handler) RejectRegistration(w http.ResponseWriter, r *http.Request) {
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
	if err := h.manager.RejectRegistration(r.Context(), caller.Username, username); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"rejected": username})
}

// ValidateConfig checks a candidate configuration without saving it. An
// empty body checks the current one. Findings answer 200; the request
// itself only fails when the body cannot be read.
func (h *Handler) ValidateConfig(w http.ResponseWriter, r *http.Request) {
	var snap *models.ConfigSnapshot
	if r.ContentLength == 0 {
		current, err := h.manager.Snapshot(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		snap = current
	} else {
		snap = &models.ConfigSnapshot{}
		if err := readJSON(w, r, snap); err != nil {
			respondError(w, r, err)
			return
		}
	}
	respondData(w, r, http.StatusOK, authz.ValidatePermissionConfig(snap, h.manager.OwnerUsername()))
}
