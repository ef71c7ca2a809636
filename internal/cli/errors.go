// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all CLI commands.
//
// Commands always return errors and never print-and-swallow them; Main
// displays the error once and maps it to an exit code.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/cardapi"
	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitLockedOut indicates sign-in is refused until the lockout ends
	ExitLockedOut = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// PermissionError represents a command the current role may not run.
type PermissionError struct {
	Action     string
	Role       security.Role
	Permission security.Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s requires '%s' (role: %s)", e.Action, e.Permission, e.Role)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument reports a required positional argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "is required",
		Example: usage,
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err in the current output mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), err.Error())

	var locked *auth.LockedOutError
	if errors.As(err, &locked) {
		fmt.Fprintln(w, RenderConditional(DimStyle, "Run 'bcard lockout status' to see when you can try again."))
	}
}

// DisplayErrorJSON writes err as a JSON error response.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]any{
		"error":      err.Error(),
		"success":    false,
		"exit_code":  GetExitCode(err),
		"error_type": errorType(err),
	}

	var validationErr *ValidationError
	var inputErr *cardapi.InputError
	var permissionErr *PermissionError
	var locked *auth.LockedOutError
	var apiErr *cardapi.APIError
	switch {
	case errors.As(err, &validationErr):
		output["field"] = validationErr.Field
		if validationErr.Example != "" {
			output["example"] = validationErr.Example
		}
	case errors.As(err, &inputErr):
		output["field"] = inputErr.Field
	case errors.As(err, &permissionErr):
		output["required_permission"] = permissionErr.Permission
		output["role"] = permissionErr.Role
	case errors.As(err, &locked):
		output["retry_after_seconds"] = int(locked.RetryAfter.Seconds())
	case errors.As(err, &apiErr):
		output["status"] = apiErr.Status
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "validation_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitLockedOut:
		return "locked_out"
	case ExitNetworkError:
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitTimeoutError:
		return "timeout_error"
	}
	return "generic_error"
}

// GetExitCode maps an error to its exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var inputErr *cardapi.InputError
	var permissionErr *PermissionError
	var configErrs config.ValidateErrors
	var netErr net.Error
	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr), errors.Is(err, auth.ErrInvalidCredentials):
		return ExitUsageError
	case errors.As(err, &configErrs):
		return ExitConfigError
	case errors.Is(err, auth.ErrLockedOut):
		return ExitLockedOut
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, storage.ErrLockTimeout):
		return ExitTimeoutError
	case errors.As(err, &permissionErr),
		errors.Is(err, security.ErrNoSession),
		errors.Is(err, auth.ErrSessionRejected),
		errors.Is(err, cardapi.ErrForbidden):
		return ExitAuthError
	case errors.Is(err, cardapi.ErrNotFound):
		return ExitNotFoundError
	case errors.As(err, &netErr):
		return ExitNetworkError
	}

	var signInErr *auth.SignInError
	if errors.As(err, &signInErr) {
		return ExitAuthError
	}
	return ExitGeneralError
}
