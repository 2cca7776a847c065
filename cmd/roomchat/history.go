// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
)

type historyParams struct {
	cli.ConnectionFlags
	Room   string `json:"room"   flag:"room"     desc:"room ID (default: the configured default_room)"`
	Limit  int    `json:"limit"  flag:"limit,n"  desc:"number of messages (default: the configured history_limit)"`
	Format string `json:"format" flag:"format,f" desc:"output format: text, json, or cbor" default:"text"`
}

func historyCommand() *cli.Command {
	var params historyParams
	return &cli.Command{
		Name:    "history",
		Summary: "Print recent messages",
		Description: `Print the most recent messages of a room, oldest first.

When the synced timeline holds fewer messages than requested and
timeline_support is enabled, older messages are fetched from the
homeserver. --format cbor writes one deterministic CBOR array, for
archiving.`,
		Usage: "roomchat history [flags]",
		Examples: []cli.Example{
			{Description: "Last 20 messages of the default room", Command: "roomchat history -n 20"},
			{Description: "Archive as CBOR", Command: "roomchat history --format cbor > room.cbor"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if err := validateFormat(params.Format); err != nil {
				return err
			}
			if params.Limit < 0 {
				return cli.Validation("--limit must not be negative")
			}

			environment, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer environment.Close()

			roomID, err := environment.Room(params.Room)
			if err != nil {
				return err
			}
			messages, err := environment.Service.HistoricalMessages(ctx, roomID, params.Limit)
			if err != nil {
				return cli.Classify(err)
			}
			resolveDisplayNames(environment.Service, messages)

			server, _ := environment.Service.Homeserver()
			return writeMessages(cli.Stdout, params.Format, messages, server)
		},
	}
}
