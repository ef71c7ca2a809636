// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package storage

import (
	"errors"
	"fmt"
	"os"
)

// checkKeyPermissions refuses key files readable by group or others.
// A missing file is reported as os.ErrNotExist.
func checkKeyPermissions(dir, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("key file has insecure permissions (%o); fix with: chmod 600 %s", mode, path)
	}

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat key directory: %w", err)
	}
	if mode := dirInfo.Mode().Perm(); mode&0022 != 0 {
		return fmt.Errorf("key directory is writable by others (%o); fix with: chmod 700 %s", mode, dir)
	}
	return nil
}
