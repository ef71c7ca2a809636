// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for bcard.
//
// Colors are off for piped output, TERM=dumb and NO_COLOR; FORCE_COLOR
// turns them back on. Prompts need stdin to be a terminal.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Card details wrap to the terminal, within these bounds.
const (
	detailWidthFallback = 80
	detailWidthMin      = 40
	detailWidthMax      = 100
)

func stdinIsTerminal() bool  { return term.IsTerminal(int(os.Stdin.Fd())) }
func stdoutIsTerminal() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// DetailWidth is the wrap width for `bcard card` output.
func DetailWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || w <= 0:
		return detailWidthFallback
	case w < detailWidthMin:
		return detailWidthMin
	case w > detailWidthMax:
		return detailWidthMax
	}
	return w
}

// =============================================================================
// COLOR MODE
// =============================================================================

type colorMode struct {
	once    sync.Once
	enabled bool
}

var colors colorMode

func detectColors() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case os.Getenv("FORCE_COLOR") != "":
		return true
	case os.Getenv("TERM") == "dumb":
		return false
	}
	return stdoutIsTerminal()
}

// ColorsEnabled reports whether styled output is used.
func ColorsEnabled() bool {
	colors.once.Do(func() { colors.enabled = detectColors() })
	return colors.enabled
}

// ForceColorsEnabled overrides detection (--no-color, config ui.no_color,
// tests) and re-applies the lipgloss profile.
func ForceColorsEnabled(enabled bool) {
	colors = colorMode{}
	colors.once.Do(func() { colors.enabled = enabled })
	lipglossProfile()
}

// ColorProfile is Ascii with colors off, otherwise the terminal's profile.
func ColorProfile() termenv.Profile {
	if ColorsEnabled() {
		return termenv.ColorProfile()
	}
	return termenv.Ascii
}

// =============================================================================
// PROMPTS
// =============================================================================

// CanPrompt reports whether the password can be read interactively.
func CanPrompt() bool {
	return stdinIsTerminal()
}

// TTYRequiredError is returned when a command needs to prompt but stdin is
// not a terminal.
type TTYRequiredError struct {
	Operation string
	Hint      string
}

func (e *TTYRequiredError) Error() string {
	op := e.Operation
	if op == "" {
		op = "prompt"
	}
	msg := "cannot " + op + ": stdin is not a terminal"
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}
