// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/validation"
)

// maxBodyBytes bounds every JSON request body. A full configuration
// snapshot with many box-client devices stays well below it.
const maxBodyBytes = 1 << 20

// respondJSON sends a JSON response with proper headers. Responses carry
// session or permission data, so they are never cached by intermediaries.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("ETag", generateETag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData wraps data in a success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

// respondError sends an error envelope; see auth.WriteError.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	auth.WriteError(w, r, err)
}

// generateETag creates a weak validator from data using FNV-1a.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return `"` + strconv.FormatUint(uint64(hash), 16) + `"`
}

// decodeJSON reads a bounded JSON body into dst and validates it. Unknown
// fields are rejected. Every failure is an auth.ErrValidation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := readJSON(w, r, dst); err != nil {
		return err
	}
	return validateRequest(dst)
}

// readJSON is decodeJSON without the struct-tag validation.
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", auth.ErrValidation)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", auth.ErrValidation)
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: request body too large", auth.ErrValidation)
		default:
			return fmt.Errorf("%w: malformed JSON body", auth.ErrValidation)
		}
	}
	return nil
}

// validateRequest runs the struct tags of v.
func validateRequest(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return fmt.Errorf("%w: %s", auth.ErrValidation, strings.Join(verr.Messages(), "; "))
	}
	return nil
}
