// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/tvbox"
)

// GetTVBox returns the box-client security settings, tokens and bindings.
func (h *Handler) GetTVBox(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, snap.TVBox)
}

// PutTVBox replaces the box-client settings. A token entry sent without a
// devices list keeps the bindings it already had, so editing switches
// does not unbind every device.
func (h *Handler) PutTVBox(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req models.TVBoxSecurityConfig
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	next, err := h.manager.UpdateConfig(r.Context(), caller.Username, func(s *models.ConfigSnapshot) error {
		for i := range req.UserTokens {
			t := &req.UserTokens[i]
			if t.Devices != nil {
				continue
			}
			if idx := s.TVBox.FindUsername(t.Username); idx >= 0 && s.TVBox.UserTokens[idx].Token == t.Token {
				t.Devices = s.TVBox.UserTokens[idx].Devices
			}
		}
		s.TVBox = req
		return nil
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, next.TVBox)
}

type resetRateLimitRequest struct {
	// Identifier is a username or a client IP.
	Identifier string `json:"identifier" validate:"required,max=128"`
}

// ResetRateLimit clears the box-client counters of one identifier.
func (h *Handler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req resetRateLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.boxes.ResetRateLimit(r.Context(), caller.Username, req.Identifier); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"reset": req.Identifier})
}

// ClearDevices unbinds every device of an account.
func (h *Handler) ClearDevices(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.boxes.ClearDevices(r.Context(), caller.Username, username)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]int{"removed": n})
}

// RemoveDevice unbinds one device of an account.
func (h *Handler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
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
	deviceID := strings.TrimSpace(chi.URLParam(r, "deviceID"))
	if err := h.boxes.RemoveDevice(r.Context(), caller.Username, username, deviceID); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]int{"removed": 1})
}

// boxConfig is what a box client receives: the video sources it may use.
type boxConfig struct {
	Username           string               `json:"username,omitempty"`
	Sites              []models.VideoSource `json:"sites"`
	FilterAdultContent bool                 `json:"filterAdultContent"`
	DeviceID           string               `json:"deviceId"`
	Bound              bool                 `json:"bound,omitempty"`
}

// BoxConfig serves the box-client configuration to a request admitted by
// tvbox.Guard. Anonymous clients (token auth off) get every enabled source.
func (h *Handler) BoxConfig(w http.ResponseWriter, r *http.Request) {
	access, ok := tvbox.AccessFrom(r.Context())
	if !ok {
		respondError(w, r, auth.ErrUnauthenticated)
		return
	}
	snap, err := h.manager.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := boxConfig{
		Username: access.Username,
		DeviceID: access.Device.ID,
		Bound:    access.Bound,
	}
	if access.Username == "" {
		out.Sites = enabledSources(snap, nil)
		out.FilterAdultContent = !snap.Site.DisableYellowFilter
	} else {
		eff := h.manager.Resolver().Effective(snap, access.Username)
		out.Sites = enabledSources(snap, eff.EnabledSources)
		out.FilterAdultContent = eff.FilterAdultContent
	}
	respondData(w, r, http.StatusOK, out)
}

// enabledSources returns the enabled sources of snap, restricted to keys
// when keys is non-nil. Keys unknown to the source list are passed through
// by key alone.
func enabledSources(snap *models.ConfigSnapshot, keys []string) []models.VideoSource {
	out := []models.VideoSource{}
	if keys == nil {
		for _, src := range snap.Sources {
			if !src.Disabled {
				out = append(out, src)
			}
		}
		return out
	}
	for _, key := range keys {
		known := false
		for _, src := range snap.Sources {
			if src.Key != key {
				continue
			}
			known = true
			if !src.Disabled {
				out = append(out, src)
			}
		}
		if !known {
			out = append(out, models.VideoSource{Key: key})
		}
	}
	return out
}

type rebindResponse struct {
	DeviceID string   `json:"deviceId"`
	Evicted  []string `json:"evicted"`
}

// Rebind registers the calling device for the token's account, evicting
// the oldest bindings beyond the cap.
func (h *Handler) Rebind(w http.ResponseWriter, r *http.Request) {
	access, evicted, err := h.boxes.Rebind(r.Context(), r)
	if err != nil {
		if errors.Is(err, auth.ErrRateLimited) && access.Rate.ResetIn > 0 {
			w.Header().Set("Retry-After", fmt.Sprint(int(access.Rate.ResetIn.Seconds())+1))
		}
		respondError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, rebindResponse{DeviceID: access.Device.ID, Evicted: evicted})
}
