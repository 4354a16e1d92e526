// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordLogin(t *testing.T) {
	before := testutil.ToFloat64(LoginAttempts.WithLabelValues("multi", "success"))
	RecordLogin("multi", "success", 20*time.Millisecond)
	after := testutil.ToFloat64(LoginAttempts.WithLabelValues("multi", "success"))

	if after-before != 1 {
		t.Errorf("LoginAttempts delta = %v, want 1", after-before)
	}
}

func TestRecordIdentityCache(t *testing.T) {
	hits := testutil.ToFloat64(IdentityCacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(IdentityCacheLookups.WithLabelValues("miss"))

	RecordIdentityCache(true)
	RecordIdentityCache(false)
	RecordIdentityCache(false)

	if got := testutil.ToFloat64(IdentityCacheLookups.WithLabelValues("hit")) - hits; got != 1 {
		t.Errorf("hit delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(IdentityCacheLookups.WithLabelValues("miss")) - misses; got != 2 {
		t.Errorf("miss delta = %v, want 2", got)
	}
}

func TestRecordDenialStatusLabel(t *testing.T) {
	tests := []struct {
		status int
		label  string
	}{
		{401, "401"},
		{403, "403"},
		{500, "other"},
	}
	for _, tt := range tests {
		before := testutil.ToFloat64(AuthorizationDenials.WithLabelValues("admin", tt.label))
		RecordDenial("admin", tt.status)
		if got := testutil.ToFloat64(AuthorizationDenials.WithLabelValues("admin", tt.label)) - before; got != 1 {
			t.Errorf("RecordDenial(%d) delta = %v, want 1", tt.status, got)
		}
	}
}

func TestRecordAPIRequestObservesDuration(t *testing.T) {
	RecordAPIRequest("GET", "/api/v1/auth/me", "200", 15*time.Millisecond)

	observer, err := APIRequestDuration.GetMetricWithLabelValues("GET", "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues() error = %v", err)
	}
	m := &dto.Metric{}
	if err := observer.(interface{ Write(*dto.Metric) error }).Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.GetHistogram().GetSampleCount() < 1 {
		t.Errorf("SampleCount = %d, want >= 1", m.GetHistogram().GetSampleCount())
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 1 {
		t.Errorf("active delta = %v, want 1", got)
	}
}
