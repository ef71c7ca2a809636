// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	// Path is the document (file) or database (sqlite) path.
	Path  string
	Redis RedisConfig
	// LockTimeout bounds the file backend's lock wait. Zero means
	// DefaultLockTimeout.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Open constructs the backend named by cfg.Driver. An empty driver selects
// the file backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverFile:
		opts := []FileOption{WithFileLogger(cfg.Logger)}
		if cfg.LockTimeout > 0 {
			opts = append(opts, WithLockTimeout(cfg.LockTimeout))
		}
		return NewFile(cfg.Path, opts...)
	case DriverSQLite:
		return NewSQLite(ctx, cfg.Path)
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// WatchPaths returns the files a Watcher should observe for cfg, or nil
// when the backend has nothing on local disk to watch.
func WatchPaths(cfg Config) []string {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverFile:
		return []string{cfg.Path}
	case DriverSQLite:
		return []string{cfg.Path, cfg.Path + "-wal"}
	default:
		return nil
	}
}
