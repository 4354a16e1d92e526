// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package config provides layered configuration loading for Reelgate.

Configuration is assembled by Koanf v2 from three layers, later layers
overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, ./config.yaml or /etc/reelgate/config.yaml
 3. Explicitly mapped environment variables (see envMappings)

Example config.yaml:

	server:
	  port: 8080
	  environment: production
	security:
	  auth_mode: multi
	  owner_username: owner
	  owner_password: "Correct-Horse-42!"
	  jwt_secret: "0123456789abcdef0123456789abcdef"
	  refresh_store: redis
	  cors_origins: ["https://video.example.com"]
	redis:
	  addr: redis:6379
	tvbox:
	  limiter: redis

Validate fails fast on a short signing secret, a missing owner credential,
unknown backends and non-positive TTLs. The owner password must satisfy
DefaultPasswordPolicy in production and RelaxedPasswordPolicy otherwise.

The permission-bearing configuration (users, tags, sources, site and box
client settings) is not part of this package; it lives in the credential
store and is edited at runtime. RegistrationConfig only seeds the site
section of a brand-new store.
*/
package config
