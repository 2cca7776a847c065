// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// roomchat is a terminal client for one Matrix chat room: an
// interactive chat screen with voice messages, plus scriptable
// commands to send, read, and follow messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
)

func main() {
	if err := run(); err != nil {
		var exitError *cli.ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCommand().ExecuteContext(ctx, os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "roomchat",
		Summary: "Terminal client for a Matrix chat room",
		Description: `roomchat is a terminal client for a Matrix chat room.

"roomchat chat" opens the interactive chat screen. The other commands
use the session saved by "roomchat login" and are meant for scripts.`,
		Subcommands: []*cli.Command{
			chatCommand(),
			cli.LoginCommand(),
			cli.LogoutCommand(),
			sendCommand(),
			historyCommand(),
			watchCommand(),
			roomsCommand(),
			voiceCommand(),
			versionCommand(),
		},
	}
}
