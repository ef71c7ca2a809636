// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Interactive input for signin and confirmations.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("cancelled")

// Prompter reads lines from the user.
type Prompter interface {
	Prompt(label string) (string, error)
	// Password reads a line without echo where the terminal allows it.
	Password(label string) (string, error)
	Close() error
}

// =============================================================================
// TERMINAL PROMPTER
// =============================================================================

// linerPrompter uses liner for line editing and hidden password entry.
type linerPrompter struct {
	line *liner.State
}

// NewTerminalPrompter returns a liner-backed Prompter. Ctrl+C aborts the
// current prompt with ErrCancelled.
func NewTerminalPrompter() Prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &linerPrompter{line: line}
}

func (p *linerPrompter) Prompt(label string) (string, error) {
	s, err := p.line.Prompt(label)
	return strings.TrimSpace(s), mapLinerErr(err)
}

func (p *linerPrompter) Password(label string) (string, error) {
	s, err := p.line.PasswordPrompt(label)
	return s, mapLinerErr(err)
}

func (p *linerPrompter) Close() error {
	return p.line.Close()
}

func mapLinerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
		return ErrCancelled
	}
	return fmt.Errorf("read input: %w", err)
}

// =============================================================================
// LINE PROMPTER
// =============================================================================

// linePrompter reads newline-terminated answers from a plain reader. Used
// when stdin is not a terminal.
type linePrompter struct {
	r   *bufio.Reader
	out io.Writer
}

// NewLinePrompter returns a Prompter reading lines from r and writing
// labels to out.
func NewLinePrompter(r io.Reader, out io.Writer) Prompter {
	return &linePrompter{r: bufio.NewReader(r), out: out}
}

func (p *linePrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.r.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func (p *linePrompter) Password(label string) (string, error) {
	s, err := p.Prompt(label)
	if err == nil {
		fmt.Fprintln(p.out)
	}
	return s, err
}

func (p *linePrompter) Close() error { return nil }

// =============================================================================
// CONFIRMATION
// =============================================================================

// RequireConfirmation asks before a destructive action. --confirm skips
// the prompt; JSON mode requires it.
func RequireConfirmation(p Prompter, confirmFlag bool, action string, jsonMode bool) (bool, error) {
	if confirmFlag {
		return true, nil
	}
	if jsonMode {
		return false, fmt.Errorf("confirmation required: use --confirm for destructive actions in JSON mode")
	}
	if p == nil {
		return false, &TTYRequiredError{Operation: "confirm " + action}
	}

	answer, err := p.Prompt(fmt.Sprintf("Are you sure you want to %s? [y/N]: ", action))
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return false, nil
		}
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
