// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package tvbox

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tomtom215/reelgate/internal/models"
)

// Request headers of the box-client protocol.
const (
	HeaderToken      = "X-TVBox-Token"
	HeaderDeviceID   = "X-Device-ID"
	HeaderDeviceName = "X-Device-Name"

	// QueryToken is the query parameter alternative to HeaderToken.
	QueryToken = "token"
)

const maxDeviceIDLen = 128

// Device is the calling installation as observed on one request.
type Device struct {
	ID        string
	Name      string
	UserAgent string
	IP        string
}

// DeviceFromRequest derives the device of r. A client-supplied X-Device-ID
// wins; otherwise the id is the first 16 bytes of SHA-256 over
// "User-Agent|client IP", hex encoded.
func DeviceFromRequest(r *http.Request, clientIP string) Device {
	d := Device{
		Name:      truncate(strings.TrimSpace(r.Header.Get(HeaderDeviceName)), 128),
		UserAgent: truncate(r.UserAgent(), 512),
		IP:        clientIP,
	}
	if id := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); id != "" {
		d.ID = truncate(id, maxDeviceIDLen)
	} else {
		d.ID = DeriveDeviceID(d.UserAgent, clientIP)
	}
	return d
}

// DeriveDeviceID fingerprints a client that sent no explicit device id.
func DeriveDeviceID(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:16])
}

// Fingerprint converts d into a stored binding made at now.
func (d Device) Fingerprint(now time.Time) models.DeviceFingerprint {
	return models.DeviceFingerprint{
		DeviceID:   d.ID,
		BindTime:   now,
		DeviceName: d.Name,
		UserAgent:  d.UserAgent,
		IP:         d.IP,
		LastSeen:   now,
	}
}

// Decision is the outcome of ValidateAccess.
type Decision struct {
	Allowed bool
	// Bind is set when the device is new and must be recorded.
	Bind   bool
	Reason string
}

// Rejection reasons.
const (
	ReasonCapacity = "device limit reached"
)

// ValidateAccess decides whether deviceID may use the account entry.
// A disabled binding always allows. A bound device is allowed. A new device
// is allowed and marked for binding while the account is below maxDevices,
// and rejected at or above it. Nothing is evicted here.
func ValidateAccess(cfg *models.TVBoxSecurityConfig, entry *models.UserToken, deviceID string) Decision {
	if !cfg.EnableDeviceBinding {
		return Decision{Allowed: true}
	}
	if entry == nil {
		return Decision{Allowed: true}
	}
	if entry.HasDevice(deviceID) {
		return Decision{Allowed: true}
	}
	if len(entry.Devices) < cfg.MaxDevices {
		return Decision{Allowed: true, Bind: true}
	}
	return Decision{Reason: ReasonCapacity}
}

// BindNewDevice returns a copy of cfg with fp bound to the account entry of
// username. A device that is already bound keeps its position and gets the
// new bind time. When the list then exceeds maxDevices the oldest bindings
// by bind time are evicted; equal bind times evict in list order. The
// evicted fingerprints are returned. cfg is not modified.
func BindNewDevice(cfg models.TVBoxSecurityConfig, username string, fp models.DeviceFingerprint) (models.TVBoxSecurityConfig, []models.DeviceFingerprint) {
	out := cfg.Clone()
	idx := out.FindUsername(username)
	if idx < 0 {
		return out, nil
	}
	entry := &out.UserTokens[idx]

	if i := slices.IndexFunc(entry.Devices, func(d models.DeviceFingerprint) bool { return d.DeviceID == fp.DeviceID }); i >= 0 {
		entry.Devices[i] = fp
	} else {
		entry.Devices = append(entry.Devices, fp)
	}

	limit := max(out.MaxDevices, 1)
	var evicted []models.DeviceFingerprint
	for len(entry.Devices) > limit {
		oldest := 0
		for i := 1; i < len(entry.Devices); i++ {
			if entry.Devices[i].BindTime.Before(entry.Devices[oldest].BindTime) {
				oldest = i
			}
		}
		evicted = append(evicted, entry.Devices[oldest])
		entry.Devices = slices.Delete(entry.Devices, oldest, oldest+1)
	}
	return out, evicted
}

// UserAgentAllowed matches ua against the whitelist. An entry matches when
// it equals ua or is a substring of it, ignoring case. An empty whitelist
// allows nothing.
func UserAgentAllowed(allowed []string, ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(ua, a) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
