// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package supervisor runs the long-lived parts of Reelgate under a suture v4
tree, so a crashed component is restarted with backoff instead of taking
the process down.

# Layout

	RootSupervisor ("reelgate")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   └── JanitorService (cache, token, lockout and limiter sweeps)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The two layers count failures independently. A janitor that keeps failing
backs off on its own while the HTTP server keeps answering.

# Logging

Supervisor events (service start, failure, restart, backoff) are emitted
through sutureslog. The caller passes a *slog.Logger, normally
logging.NewSlogLogger, so the events land in the zerolog JSON stream.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMaintenanceService(services.NewJanitorService(time.Minute, tasks...))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	errCh := tree.ServeBackground(ctx)

Service implementations live in the services subpackage.
*/
package supervisor
