// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for bcard.
package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdSignIn
	CmdSignOut
	CmdWhoami
	CmdLockout
	CmdCards
	CmdCard
	CmdLike
	CmdMyCards
	CmdFavorites
	CmdCreateCard
	CmdCRM
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:        "tui",
	CmdSignIn:     "signin",
	CmdSignOut:    "signout",
	CmdWhoami:     "whoami",
	CmdLockout:    "lockout",
	CmdCards:      "cards",
	CmdCard:       "card",
	CmdLike:       "like",
	CmdMyCards:    "my-cards",
	CmdFavorites:  "favorites",
	CmdCreateCard: "create-card",
	CmdCRM:        "crm",
	CmdConfig:     "config",
	CmdDoctor:     "doctor",
	CmdVersion:    "version",
	CmdHelp:       "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// NeedsServices reports whether the command talks to storage or the API.
func (c Command) NeedsServices() bool {
	switch c {
	case CmdConfig, CmdVersion, CmdHelp:
		return false
	}
	return true
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Verbose bool
	JSON    bool
	Quiet   bool
	NoColor bool

	// Raw args after the command name
	Raw []string

	// Unknown is set when the command name was not recognised.
	Unknown string
}

const usageText = `bcard - business cards from the terminal

Usage:
  bcard                          Start the TUI (default)
  bcard signin [email]           Sign in (password is prompted)
  bcard signout                  Sign out
  bcard whoami                   Show the signed-in user and role
  bcard lockout [status]         Show failed attempts and lockout state

Cards:
  bcard cards [--search q] [--page n]
                                 Browse cards
  bcard card <id>                Show one card
  bcard like <id>                Like or unlike a card (signed in)
  bcard my-cards [--page n]      Cards you created (business users)
  bcard favorites [--page n]     Cards you liked
  bcard create-card --title t --subtitle s --description d --phone p
        --email e --country c --city c --street s --house-number n
        [--web url] [--image-url url] [--image-alt text] [--state s]
        [--zip n] [--file card.json]
                                 Publish a card (business users)

Admin (CRM):
  bcard crm users [--business] [--page n]
  bcard crm cards [--page n]
  bcard crm delete-user <id> [--confirm]
  bcard crm delete-card <id> [--confirm]
  bcard crm business <id> [--off]
  bcard crm edit-card <id> [card flags as in create-card]
  bcard crm edit-user <id> [--first f] [--middle m] [--last l]
        [--email e] [--phone p]

Configuration:
  bcard config show              Show the effective configuration
  bcard config path              Show the config file path
  bcard config get <key>         Show one setting
  bcard config set <key> <value> Change one setting
  bcard config keys              List settings
  bcard doctor                   Check config, storage, session and API

Global flags:
  --json                         Machine-readable output
  -v, --verbose                  Debug logging
  -q, --quiet                    Less output
  --no-color                     Disable colours

Environment:
  BCARD_HOME                     Config directory (default ~/.bcard)
  BCARD_<SECTION>_<KEY>          Override a setting, e.g. BCARD_STORAGE_BACKEND=sqlite
  BCARD_PASSPHRASE               Derive the token key from a passphrase
  BCARD_PASSWORD                 Password for non-interactive signin

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "bcard version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	parsedArgs.Raw = remaining[1:]

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs
	case "signin", "login", "sign-in":
		return CmdSignIn, parsedArgs
	case "signout", "logout", "sign-out":
		return CmdSignOut, parsedArgs
	case "whoami", "me", "profile":
		return CmdWhoami, parsedArgs
	case "lockout":
		return CmdLockout, parsedArgs
	case "cards", "ls":
		return CmdCards, parsedArgs
	case "card", "show":
		return CmdCard, parsedArgs
	case "like", "unlike":
		return CmdLike, parsedArgs
	case "my-cards", "mycards", "mine":
		return CmdMyCards, parsedArgs
	case "favorites", "favourites", "fav":
		return CmdFavorites, parsedArgs
	case "create-card", "createcard", "new-card":
		return CmdCreateCard, parsedArgs
	case "crm", "admin":
		return CmdCRM, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "doctor", "diag":
		return CmdDoctor, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	default:
		parsedArgs.Unknown = cmd
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for _, arg := range args {
		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--no-color":
			parsedArgs.NoColor = true
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsedArgs
}
