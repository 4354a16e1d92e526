// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/models"
)

// sessionResponse is the body of a login, refresh or password change. The
// same tokens are set as HttpOnly cookies; the body copy serves clients
// that use the Authorization header.
type sessionResponse struct {
	Identity         models.Identity `json:"identity"`
	TokenType        string          `json:"tokenType"`
	AccessToken      string          `json:"accessToken"`
	AccessExpiresAt  time.Time       `json:"accessExpiresAt"`
	RefreshToken     string          `json:"refreshToken,omitempty"`
	RefreshExpiresAt *time.Time      `json:"refreshExpiresAt,omitempty"`
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, status int, res *auth.SessionResult) {
	h.guard.SetSessionCookies(w, res)
	body := sessionResponse{
		Identity:        res.Identity,
		TokenType:       "Bearer",
		AccessToken:     res.Tokens.AccessToken,
		AccessExpiresAt: res.Tokens.AccessExpiresAt,
		RefreshToken:    res.Tokens.RefreshToken,
	}
	if res.Tokens.RefreshToken != "" {
		exp := res.Tokens.RefreshExpiresAt
		body.RefreshExpiresAt = &exp
	}
	respondData(w, r, status, body)
}

// Login verifies credentials and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.IP = auth.ClientIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.manager.Login(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, res)
}

// tokenRequest lets header-based clients send the refresh token in the body.
type tokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"omitempty,max=512"`
}

// refreshToken prefers the cookie and falls back to an optional JSON body.
func refreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if t := auth.RefreshTokenFromRequest(r); t != "" {
		return t, nil
	}
	if r.ContentLength == 0 {
		return "", nil
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

// Logout ends the session. It always answers 200 and clears the cookies,
// whether or not a session existed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := refreshToken(w, r)
	req := auth.LogoutRequest{RefreshToken: token, IP: auth.ClientIP(r)}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		req.Username = id.Username
	}
	h.manager.Logout(r.Context(), req)
	h.guard.ClearSessionCookies(w)
	respondData(w, r, http.StatusOK, map[string]bool{"loggedOut": true})
}

// Refresh exchanges the refresh token for a new access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshToken(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if token == "" {
		respondError(w, r, auth.ErrUnauthenticated)
		return
	}
	res, err := h.manager.Refresh(r.Context(), token)
	if err != nil {
		if auth.IsRejection(err) {
			h.guard.ClearSessionCookies(w)
		}
		respondError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, res)
}

// Register creates an account or queues it for approval. A queued
// registration answers 202 without a session.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.IP = auth.ClientIP(r)

	res, err := h.manager.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if res.Pending {
		respondData(w, r, http.StatusAccepted, map[string]bool{"pending": true})
		return
	}
	h.writeSession(w, r, http.StatusCreated, res.Session)
}

// Check answers the signature fast path: who the signature cookie names,
// without touching the token store.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.SignedUserFrom(r.Context())
	respondData(w, r, http.StatusOK, map[string]string{"username": username})
}

// Me returns the authenticated identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respondError(w, r, auth.ErrUnauthenticated)
		return
	}
	respondData(w, r, http.StatusOK, id)
}

// ChangePassword replaces the caller's password and returns a fresh
// session; every other session of the account ends.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respondError(w, r, auth.ErrUnauthenticated)
		return
	}
	var req auth.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.manager.ChangePassword(r.Context(), id.Username, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, res)
}

// Permissions returns the caller's effective permissions.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respondError(w, r, auth.ErrUnauthenticated)
		return
	}
	eff, err := h.manager.Effective(r.Context(), id.Username)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, eff)
}
