// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/reelgate/internal/api"
	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/supervisor"
	"github.com/tomtom215/reelgate/internal/supervisor/services"
	"github.com/tomtom215/reelgate/internal/tvbox"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info().
		Str("version", version).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Reelgate")
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin; set CORS_ORIGINS in production")
	}

	hasher := auth.NewBcryptHasher(auth.DefaultBcryptCost)
	owner, err := auth.NewOwnerCredential(cfg.Security.OwnerUsername, cfg.Security.OwnerPassword, hasher)
	if err != nil {
		return fmt.Errorf("owner credential: %w", err)
	}

	res := &resources{}
	defer res.close()

	if cfg.UsesRedis() {
		if res.redis, err = openRedis(ctx, cfg); err != nil {
			return err
		}
	}

	st, err := openStore(cfg, hasher)
	if err != nil {
		return err
	}
	res.store = st

	refreshStore, err := openRefreshStore(cfg, res)
	if err != nil {
		return err
	}
	codec, err := auth.NewTokenCodec(auth.CodecConfig{
		Secret:     []byte(cfg.Security.JWTSecret),
		AccessTTL:  cfg.Security.AccessTokenTTL,
		RefreshTTL: cfg.Security.RefreshTokenTTL,
		Rotate:     cfg.Security.RotateRefreshTokens,
		Issuer:     "reelgate",
	}, refreshStore)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	var lockout *auth.LockoutManager
	if cfg.Security.Lockout.Enabled {
		lockout = auth.NewLockoutManager(nil, cfg.Security.Lockout)
	}

	identities := cache.New(cfg.Security.IdentityCacheTTL)
	manager, err := auth.NewManager(auth.ManagerConfig{
		Mode:           cfg.Security.AuthMode,
		Owner:          owner,
		IdentityTTL:    cfg.Security.IdentityCacheTTL,
		PasswordPolicy: passwordPolicy(cfg),
	}, codec, st, identities, lockout)
	if err != nil {
		return fmt.Errorf("auth manager: %w", err)
	}

	if err := migrateAtStartup(ctx, manager); err != nil {
		return err
	}

	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{
		ModelPath:    cfg.Security.Casbin.ModelPath,
		PolicyPath:   cfg.Security.Casbin.PolicyPath,
		CacheEnabled: cfg.Security.Casbin.CacheEnabled,
		CacheTTL:     cfg.Security.Casbin.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("casbin enforcer: %w", err)
	}

	limiter, memLimiter := boxLimiter(cfg, res)
	loginRL := auth.NewIPRateLimiter(cfg.Security.LoginRatePerMinute, cfg.Security.LoginBurst)

	handler, err := api.NewHandler(api.HandlerConfig{
		Manager:      manager,
		Guard:        auth.NewGuard(manager, cfg.Security.SecureCookies),
		Boxes:        tvbox.NewGuard(st, limiter),
		Enforcer:     enforcer,
		LoginLimiter: loginRL,
		Readiness:    readinessChecks(res),
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("api handler: %w", err)
	}
	router := api.NewRouter(handler, api.RouterConfig{
		TrustedProxies: cfg.Security.TrustedProxies,
		Middleware:     middlewareConfig(cfg),
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	tree.AddMaintenanceService(services.NewJanitorService(janitorInterval(cfg), janitorTasks(janitorDeps{
		identities: identities,
		codec:      codec,
		lockout:    lockout,
		loginRL:    loginRL,
		boxes:      memLimiter,
		enforcer:   enforcer,
	})...))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("supervisor tree: %w", err)
		}
		cancel()
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return runErr
}

// migrateAtStartup folds legacy permission data into the current layout.
// A snapshot that is already current is left untouched.
func migrateAtStartup(ctx context.Context, manager *auth.Manager) error {
	res, err := manager.MigrateLegacy(ctx, "startup")
	if err != nil {
		return fmt.Errorf("legacy permission migration: %w", err)
	}
	if res.Changed() {
		logging.Info().
			Int("users", len(res.ChangedUsers)).
			Int("tags", len(res.ChangedTags)).
			Msg("Migrated legacy permissions")
	}
	if len(res.InheritingUsers) > 0 {
		logging.Warn().
			Strs("users", res.InheritingUsers).
			Msg("Users whose source override held only legacy tokens now inherit tag sources")
	}
	return nil
}

func passwordPolicy(cfg *config.Config) config.PasswordPolicy {
	if cfg.IsProduction() {
		return config.DefaultPasswordPolicy()
	}
	return config.RelaxedPasswordPolicy()
}

func middlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mw.RateLimitRequests = cfg.Security.RateLimitReqs
	mw.RateLimitWindow = cfg.Security.RateLimitWindow
	mw.RateLimitDisabled = cfg.Security.RateLimitDisabled
	// Browsers refuse credentialed responses to a wildcard origin.
	for _, o := range mw.CORSAllowedOrigins {
		if o == "*" {
			mw.CORSAllowCredentials = false
		}
	}
	return mw
}
