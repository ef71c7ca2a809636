// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Health checks for a bcard installation.
//
// Command: doctor
// Aliases: diag
//
// Health Checks Performed:
//   1. Config       - A config file exists and is valid
//   2. Storage      - The state backend answers reads
//   3. Token key    - The session token is sealed with an owner-only key
//   4. Session      - Signed in, and the profile confirmed
//   5. Lockout      - Sign-in is not locked out
//   6. API          - The cards API is reachable
//
// Exit Codes:
//   0   No check failed (warnings allowed)
//   1   One or more checks failed

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/security"
	"github.com/jeranaias/bcard-tui/internal/storage"
)

// apiCheckTimeout bounds the API reachability check.
const apiCheckTimeout = 5 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the status marker.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return RenderConditional(SuccessStyle, "[OK]")
	case CheckWarn:
		return RenderConditional(WarningStyle, "[!!]")
	case CheckFail:
		return RenderConditional(ErrorStyle, "[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"`
	State   string      `json:"status"`
}

// Render returns the check as one or two lines.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n    " + RenderConditional(DimStyle, "-> "+c.Fix)
	}
	return result
}

// DoctorData is the JSON shape of doctor.
type DoctorData struct {
	Checks  []*HealthCheck `json:"checks"`
	Passed  int            `json:"passed"`
	Warned  int            `json:"warned"`
	Failed  int            `json:"failed"`
	Healthy bool           `json:"healthy"`
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

func (c *command) doctor() error {
	checks := []*HealthCheck{
		checkConfigFile(c.app.Config),
		checkStorage(c.ctx, c.app.Store),
		checkTokenKey(c.app.Config),
		checkSession(c.app.Sessions.Current()),
		checkLockout(c.app.Guard.CheckAndMaybeExpire(c.ctx)),
		c.checkAPI(),
	}

	data := DoctorData{Checks: checks}
	for _, check := range checks {
		check.State = check.Status.String()
		switch check.Status {
		case CheckPass:
			data.Passed++
		case CheckWarn:
			data.Warned++
		case CheckFail:
			data.Failed++
		}
	}
	data.Healthy = data.Failed == 0

	if err := c.emit(data, func(w io.Writer) {
		fmt.Fprintln(w, RenderConditional(TitleStyle, "bcard Doctor"))
		for _, check := range checks {
			fmt.Fprintln(w, check.Render())
		}
		fmt.Fprintln(w)
		parts := []string{fmt.Sprintf("%d passed", data.Passed)}
		if data.Warned > 0 {
			parts = append(parts, fmt.Sprintf("%d warning", data.Warned))
		}
		if data.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", data.Failed))
		}
		fmt.Fprintln(w, RenderConditional(DimStyle, strings.Join(parts, ", ")))
	}); err != nil {
		return err
	}

	if data.Failed > 0 {
		return fmt.Errorf("%d health check(s) failed", data.Failed)
	}
	return nil
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func checkConfigFile(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "config"}
	path, err := config.PathTOML()
	if err != nil {
		check.Status = CheckFail
		check.Message = "Config directory unavailable: " + err.Error()
		return check
	}
	if _, err := os.Stat(path); err != nil {
		check.Status = CheckWarn
		check.Message = "No config file, using defaults"
		check.Fix = "bcard config set api.base_url <url>"
		return check
	}
	if err := cfg.Validate(); err != nil {
		check.Status = CheckFail
		check.Message = "Config invalid: " + err.Error()
		return check
	}
	check.Message = "Config loaded from " + path
	return check
}

func checkStorage(ctx context.Context, store storage.Store) *HealthCheck {
	check := &HealthCheck{Name: "storage"}
	_, err := store.Get(ctx, security.AttemptsKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		check.Status = CheckFail
		check.Message = "Storage unreadable: " + err.Error()
		check.Fix = "check storage.backend and storage.path"
		return check
	}
	check.Message = "Storage readable"
	return check
}

func checkTokenKey(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "token_key"}
	if !cfg.Security.EncryptToken {
		check.Status = CheckWarn
		check.Message = "Session token stored unencrypted"
		check.Fix = "bcard config set security.encrypt_token true"
		return check
	}
	if cfg.Security.PassphraseEnv != "" && os.Getenv(cfg.Security.PassphraseEnv) != "" {
		check.Message = "Token key derived from " + cfg.Security.PassphraseEnv
		return check
	}
	path, err := cfg.KeyPath()
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		return check
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		check.Status = CheckWarn
		check.Message = "Token key not created yet"
	case info.Mode().Perm()&0077 != 0:
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Token key %s is readable by others (%v)", path, info.Mode().Perm())
		check.Fix = "chmod 600 " + path
	default:
		check.Message = "Token key " + path
	}
	return check
}

func checkSession(sess *security.Session) *HealthCheck {
	check := &HealthCheck{Name: "session"}
	switch {
	case sess == nil:
		check.Status = CheckWarn
		check.Message = "Not signed in"
		check.Fix = "bcard signin"
	case !sess.Confirmed():
		check.Status = CheckWarn
		check.Message = "Signed in, profile not confirmed"
	default:
		check.Message = fmt.Sprintf("Signed in as %s", security.RoleOf(sess))
	}
	return check
}

func checkLockout(st security.Status) *HealthCheck {
	check := &HealthCheck{Name: "lockout"}
	if st.Locked {
		check.Status = CheckWarn
		check.Message = security.LockedOutMessage(st.RetryAfter)
		return check
	}
	check.Message = fmt.Sprintf("Sign-in open (%d of %d attempts left)", st.AttemptsRemaining, st.MaxAttempts)
	return check
}

func (c *command) checkAPI() *HealthCheck {
	check := &HealthCheck{Name: "api"}
	ctx, cancel := context.WithTimeout(c.ctx, apiCheckTimeout)
	defer cancel()

	cards, err := c.app.API.ListCards(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = "API unreachable: " + err.Error()
		check.Fix = "bcard config set api.base_url <url>"
		return check
	}
	check.Message = fmt.Sprintf("API reachable at %s (%d cards)", c.app.API.BaseURL(), len(cards))
	return check
}
