// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across bcard packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync and rename
//   - SyncDir: Durable directory entries after a rename
//
// Display Width:
//   - TruncateWidth: Column-aware truncation with ellipsis
//   - PadRight: Pad to a display width for table output
//
// # Usage
//
//	// Persist state so a crash leaves either the old or the new file
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit a card title into a 24 column table cell
//	cell := util.PadRight(util.TruncateWidth(title, 24), 24)
package util
