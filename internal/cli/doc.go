// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the bcard command line: argument parsing, service
// bootstrap, and the non-interactive commands.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: global flags plus the raw arguments after the command name
//   - App: the services shared with the TUI (storage, guard, sessions, API)
//   - Env: the streams, prompter and config loader a command runs with
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	if cmd == cli.CmdTUI {
//	    // start the TUI with cli.Bootstrap
//	}
//	os.Exit(cli.Run(ctx, cmd, args, cli.StdEnv()))
//
// Every command supports --json. Errors map to exit codes through
// GetExitCode; a sign-in refused by the lockout exits with ExitLockedOut.
package cli
