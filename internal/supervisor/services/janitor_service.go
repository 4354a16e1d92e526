// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package services

import (
	"context"
	"time"

	"github.com/tomtom215/reelgate/internal/logging"
)

// SweepTask is one periodic cleanup. Run returns how many entries it
// removed.
type SweepTask struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// JanitorService runs its tasks on a fixed interval: expired cache
// entries, refresh families, lockout records and idle limiter buckets.
// A failing task is logged and retried on the next tick; it never stops
// the others.
type JanitorService struct {
	interval time.Duration
	tasks    []SweepTask
}

// NewJanitorService creates the service. A non-positive interval becomes
// one minute.
func NewJanitorService(interval time.Duration, tasks ...SweepTask) *JanitorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &JanitorService{interval: interval, tasks: tasks}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once and returns the removal count per task name.
func (j *JanitorService) RunOnce(ctx context.Context) map[string]int {
	removed := make(map[string]int, len(j.tasks))
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			break
		}
		n, err := task.Run(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("task", task.Name).Msg("Sweep failed")
			continue
		}
		removed[task.Name] = n
		if n > 0 {
			logging.Debug().Str("task", task.Name).Int("removed", n).Msg("Sweep completed")
		}
	}
	return removed
}

// String names the service in supervisor events.
func (j *JanitorService) String() string {
	return "janitor"
}
