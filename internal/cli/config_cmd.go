// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Show and change settings.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)      Print the effective configuration
//   path                Print the config file path
//   get <key>           Print one setting
//   set <key> <value>   Change one setting and save
//   keys                List every setting

package cli

import (
	"fmt"
	"io"

	"github.com/jeranaias/bcard-tui/internal/config"
)

func runConfig(cfg *config.Config, env Env, args Args) error {
	p := NewArgParser(args.Raw)
	emit := func(data any, render func(w io.Writer)) error {
		if args.JSON {
			return NewJSONResponse(CmdConfig.String(), data).Print(env.Out)
		}
		render(env.Out)
		return nil
	}

	switch sub := p.Subcommand(); sub {
	case "", "show":
		return emit(cfg, func(w io.Writer) {
			fmt.Fprintln(w, cfg.String())
		})

	case "path":
		path, err := config.PathTOML()
		if err != nil {
			return err
		}
		return emit(map[string]string{"path": path}, func(w io.Writer) {
			fmt.Fprintln(w, path)
		})

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "bcard config get storage.backend")
		}
		v, err := cfg.Redacted(key)
		if err != nil {
			return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "bcard config keys"}
		}
		return emit(map[string]any{"key": key, "value": v}, func(w io.Writer) {
			fmt.Fprintln(w, v)
		})

	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "bcard config set storage.backend sqlite")
		}
		next := cfg.Clone()
		if err := next.Set(key, value); err != nil {
			return &ValidationError{Field: key, Value: value, Reason: err.Error()}
		}
		next.SetDefaults()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := config.Save(next); err != nil {
			return err
		}
		v, _ := next.Redacted(key)
		return emit(map[string]any{"key": key, "value": v}, func(w io.Writer) {
			if !args.Quiet {
				fmt.Fprintf(w, "%s = %v\n", key, v)
			}
		})

	case "keys":
		keys := config.Keys()
		return emit(keys, func(w io.Writer) {
			for _, k := range keys {
				fmt.Fprintln(w, k)
			}
		})

	default:
		return &ValidationError{Field: "subcommand", Value: sub, Reason: "unknown config subcommand", Example: "bcard config show"}
	}
}
