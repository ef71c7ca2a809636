// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the persistent key-value store that bcard keeps
// its sign-in state in.
//
// Every running bcard process on a machine shares one store, so all backends
// implement Update as an atomic read-modify-write across processes.
//
// # Key Types
//
//   - Store: Backend interface (Get, Set, Delete, Update, Close)
//   - MemoryStore: Process-local map, used in tests
//   - FileStore: One JSON document guarded by an OS file lock
//   - SQLiteStore: kv table updated in immediate transactions
//   - RedisStore: Prefixed keys updated with WATCH/MULTI
//   - Sealed: Wrapper encrypting selected keys at rest
//   - Watcher: Debounced change notifications for the store file
//
// # Usage
//
// Open the configured backend:
//
//	store, err := storage.Open(ctx, storage.Config{Driver: storage.DriverFile, Path: path})
//	defer store.Close()
//
// Atomically bump a counter:
//
//	err := store.Update(ctx, "attempts", func(cur []byte, found bool) ([]byte, error) {
//	    return next(cur), nil
//	})
//
// # Storage Location
//
// The file backend defaults to ~/.bcard/state.json, the SQLite backend to
// ~/.bcard/state.db.
package storage
