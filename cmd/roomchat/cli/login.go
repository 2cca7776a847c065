// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
)

type loginParams struct {
	ConnectionFlags
	Server       string `json:"-" flag:"server"        desc:"homeserver URL (default: the configured default_server)"`
	PasswordFile string `json:"-" flag:"password-file" desc:"file containing the password, or - for the first line of stdin (default: prompt)"`
}

// LoginCommand returns the "login" command. It logs in with a
// username and password, waits for the first sync to prove the session
// works, and saves the access token so later commands (and the chat
// screen) start without asking again.
func LoginCommand() *Command {
	var params loginParams

	return &Command{
		Name:    "login",
		Summary: "Log in and save the session",
		Description: `Log in to the homeserver and save the session locally.

The username may be a bare name ("alice"), which is qualified against the
homeserver ("@alice:example.org"), or a full Matrix user ID.

The session file is stored at ~/.config/roomchat/session.cbor (or
$ROOMCHAT_SESSION_FILE, or $XDG_CONFIG_HOME/roomchat/session.cbor) with
mode 0600, since it contains an access token.`,
		Usage: "roomchat login <username> [flags]",
		Examples: []Example{
			{
				Description: "Log in interactively (prompts for password)",
				Command:     "roomchat login alice",
			},
			{
				Description: "Log in to another homeserver with the password on stdin",
				Command:     "pass show matrix | roomchat login alice --server https://matrix.example.org --password-file -",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 1 {
				return Validation("username is required\n\nUsage: roomchat login <username> [flags]")
			}
			if len(args) > 1 {
				return Validation("unexpected argument: %s", args[1])
			}
			username := args[0]

			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			server := params.Server
			if server == "" {
				server = cfg.Server()
			}
			if _, err := chat.FormatAccountID(username, server); err != nil {
				return Classify(err)
			}

			password, err := ReadPassword(params.PasswordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			service := chat.NewService(ServiceConfig(cfg, logger))
			if err := service.Login(ctx, server, username, password); err != nil {
				return Classify(err)
			}
			defer service.Disconnect()

			session := service.Session()
			if session == nil {
				return Internal("login succeeded but no session is active")
			}
			path := params.SessionPath()
			if err := SaveSessionTo(NewSavedSession(session.Credentials(), time.Now()), path); err != nil {
				return Internal("save session: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Logged in as %s\n", session.UserID())
			fmt.Fprintf(os.Stderr, "Session saved to %s\n", path)
			return nil
		},
	}
}

type logoutParams struct {
	ConnectionFlags
}

// LogoutCommand returns the "logout" command: it invalidates the saved
// access token on the homeserver and deletes the session file.
func LogoutCommand() *Command {
	var params logoutParams

	return &Command{
		Name:    "logout",
		Summary: "Log out and delete the saved session",
		Description: `Invalidate the saved access token on the homeserver and delete the
session file. The file is deleted even when the homeserver cannot be
reached.`,
		Usage:  "roomchat logout [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return Validation("unexpected argument: %s", args[0])
			}
			path := params.SessionPath()

			environment, err := params.Connect(ctx, logger)
			if errors.Is(err, ErrNoSession) {
				return err
			}
			if err != nil {
				logger.Warn("could not resume session for server-side logout", "error", err)
			} else if err := environment.Service.Logout(ctx); err != nil {
				environment.Close()
				return Classify(err)
			}

			if err := RemoveSession(path); err != nil {
				return Internal("%w", err)
			}
			fmt.Fprintf(os.Stderr, "Removed %s\n", path)
			return nil
		},
	}
}
