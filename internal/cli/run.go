// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// run.go - Command dispatch.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/security"
)

// Env is the process environment a command runs in.
type Env struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Prompter reads interactive input. Nil means prompts are unavailable.
	Prompter Prompter

	// Getenv defaults to os.Getenv.
	Getenv func(string) string

	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)

	// AppOptions are passed to Bootstrap.
	AppOptions []AppOption
}

// StdEnv returns an Env bound to the process's standard streams.
func StdEnv() Env {
	env := Env{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	if CanPrompt() {
		env.Prompter = NewTerminalPrompter()
	} else {
		env.Prompter = NewLinePrompter(os.Stdin, os.Stderr)
	}
	return env
}

func (e *Env) defaults() {
	if e.Out == nil {
		e.Out = io.Discard
	}
	if e.Err == nil {
		e.Err = io.Discard
	}
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}
	if e.LoadConfig == nil {
		e.LoadConfig = config.Load
	}
}

// command is one CLI command bound to its services.
type command struct {
	cmd  Command
	ctx  context.Context
	app  *App
	env  Env
	args Args
}

// Run executes a parsed command and returns its exit code. The TUI is not
// handled here.
func Run(ctx context.Context, cmd Command, args Args, env Env) int {
	env.defaults()
	if args.NoColor {
		ForceColorsEnabled(false)
	}

	err := run(ctx, cmd, args, env)
	if err != nil {
		if args.JSON {
			DisplayError(env.Out, err, true)
		} else {
			DisplayError(env.Err, err, false)
		}
	}
	return GetExitCode(err)
}

func run(ctx context.Context, cmd Command, args Args, env Env) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(env.Out)
		if args.Unknown != "" {
			return NewValidationError("command", args.Unknown, "unknown command")
		}
		return nil
	case CmdVersion:
		PrintVersion(env.Out)
		return nil
	case CmdTUI:
		return fmt.Errorf("the TUI is started by the bcard binary")
	}

	cfg, err := env.LoadConfig()
	if err != nil {
		var verr config.ValidateErrors
		if errors.As(err, &verr) || cfg == nil {
			return err
		}
		fmt.Fprintf(env.Err, "%s %v; using defaults\n", RenderConditional(WarningStyle, "[WARN]"), err)
	}
	if cfg.UI.NoColor {
		ForceColorsEnabled(false)
	}

	if cmd == CmdConfig {
		return runConfig(cfg, env, args)
	}

	opts := append([]AppOption{WithEventNotifier(eventPrinter(env, args))}, env.AppOptions...)
	app, err := Bootstrap(ctx, cfg, args.Verbose, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	c := &command{cmd: cmd, ctx: ctx, app: app, env: env, args: args}
	if cmd != CmdSignIn {
		if _, err := app.Auth.Resume(ctx); err != nil {
			app.Logger.Debug("session resume failed", "error", err)
		}
	}

	switch cmd {
	case CmdSignIn:
		return c.signIn()
	case CmdSignOut:
		return c.signOut()
	case CmdWhoami:
		return c.whoami()
	case CmdLockout:
		return c.lockout()
	case CmdCards:
		return c.cards()
	case CmdCard:
		return c.card()
	case CmdLike:
		return c.like()
	case CmdMyCards:
		return c.myCards()
	case CmdFavorites:
		return c.favorites()
	case CmdCreateCard:
		return c.createCard()
	case CmdCRM:
		return c.crm()
	case CmdDoctor:
		return c.doctor()
	}
	return fmt.Errorf("unhandled command: %s", cmd)
}

// eventPrinter renders guard and session events on stderr. JSON and quiet
// modes stay silent.
func eventPrinter(env Env, args Args) security.Notifier {
	return security.NotifierFunc(func(e security.Event) {
		if args.JSON || args.Quiet {
			return
		}
		fmt.Fprintln(env.Err, RenderEvent(e))
	})
}

// =============================================================================
// SHARED COMMAND HELPERS
// =============================================================================

// view returns the role view of the current session.
func (c *command) view() security.RoleView {
	return security.View(c.app.Sessions.Current())
}

// subject returns the signed-in user id, or "".
func (c *command) subject() string {
	if sess := c.app.Sessions.Current(); sess != nil {
		return sess.Identity.Subject
	}
	return ""
}

// require returns a PermissionError unless the current role grants p.
func (c *command) require(action string, p security.Permission) error {
	v := c.view()
	if v.Allows(p) {
		return nil
	}
	return &PermissionError{Action: action, Role: v.Role(), Permission: p}
}

// emit prints data as a JSON envelope in --json mode, otherwise calls
// render.
func (c *command) emit(data any, render func(w io.Writer)) error {
	if c.args.JSON {
		return NewJSONResponse(c.cmd.String(), data).Print(c.env.Out)
	}
	render(c.env.Out)
	return nil
}

// say prints a status line unless --quiet is set.
func (c *command) say(format string, a ...any) {
	if c.args.Quiet || c.args.JSON {
		return
	}
	fmt.Fprintf(c.env.Out, format+"\n", a...)
}
