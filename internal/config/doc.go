// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the bcard configuration.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: the full configuration, one struct per section
//   - APIConfig: card API base URL, timeout, auth header, rate limit
//   - SecurityConfig: attempt threshold, lockout window, token sealing
//   - StorageConfig: backend selection (file, sqlite, redis, memory)
//   - ValidateErrors: every invalid setting found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (BCARD_<SECTION>_<KEY>)
//   - ~/.bcard/config.toml
//   - ~/.bcard/config.json
//   - Built-in defaults
//
// BCARD_HOME moves the whole directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	window := cfg.LockoutDuration()
package config
