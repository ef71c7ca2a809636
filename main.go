// bcard - Business card directory client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/bcard-tui/internal/cli"
	"github.com/jeranaias/bcard-tui/internal/config"
	"github.com/jeranaias/bcard-tui/internal/ui/tui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := cli.Parse(os.Args[1:])
	if cmd != cli.CmdTUI {
		code := cli.Run(ctx, cmd, args, cli.StdEnv())
		stop()
		os.Exit(code)
	}

	if err := runTUI(ctx, args); err != nil {
		cli.DisplayError(os.Stderr, err, false)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}

// runTUI loads the configuration, starts the services with the event bridge
// as their notifier and blocks until the interface exits.
func runTUI(ctx context.Context, args cli.Args) error {
	if args.NoColor {
		cli.ForceColorsEnabled(false)
	}

	cfg, err := config.Load()
	if err != nil {
		var verr config.ValidateErrors
		if errors.As(err, &verr) || cfg == nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s %v; using defaults\n", cli.RenderConditional(cli.WarningStyle, "[WARN]"), err)
	}
	if cfg.UI.NoColor {
		cli.ForceColorsEnabled(false)
	}

	bridge := tui.NewBridge()
	app, err := cli.Bootstrap(ctx, cfg, args.Verbose, cli.WithEventNotifier(bridge))
	if err != nil {
		return err
	}
	defer app.Close()

	return tui.Run(ctx, app, bridge)
}
