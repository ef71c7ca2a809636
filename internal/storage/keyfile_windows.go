// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package storage

import (
	"errors"
	"fmt"
	"os"
)

// checkKeyPermissions only checks existence on Windows; the profile
// directory ACL protects the file.
func checkKeyPermissions(_, path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}
	return nil
}
