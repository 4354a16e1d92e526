// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package authz

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/metrics"
	"github.com/tomtom215/reelgate/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the route policy enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string
	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string

	CacheEnabled bool
	CacheTTL     time.Duration
}

// Enforcer evaluates the Casbin route policy. Subjects are role names; the
// policy's grouping rules give owner > admin > user inheritance.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    *cache.Cache
}

// NewEnforcer loads the model and policy and builds the enforcer.
func NewEnforcer(cfg EnforcerConfig) (*Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{enforcer: enforcer}
	if cfg.CacheEnabled {
		e.cache = cache.New(cfg.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses policy CSV lines into p and g rules.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	key := role + "|" + action + "|" + object
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			allowed, _ := v.(bool)
			metrics.RecordPolicyDecision(allowed, true)
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	metrics.RecordPolicyDecision(allowed, false)
	return allowed, nil
}

// Authorize maps an HTTP request onto the policy for role.
func (e *Enforcer) Authorize(role models.Role, method, path string) (bool, error) {
	if !role.IsValid() {
		return false, nil
	}
	return e.Enforce(role.String(), path, methodToAction(method))
}

// methodToAction maps HTTP methods to policy actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodDelete:
		return "delete"
	default:
		return "write"
	}
}

// InvalidateCache drops every cached decision.
func (e *Enforcer) InvalidateCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Sweep evicts expired cached decisions; the janitor calls it.
func (e *Enforcer) Sweep() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.Sweep()
}

// Policy returns all p rules.
func (e *Enforcer) Policy() [][]string {
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetPolicy()
	return policies
}

// GroupingPolicy returns all role inheritance rules.
func (e *Enforcer) GroupingPolicy() [][]string {
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetGroupingPolicy()
	return policies
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
