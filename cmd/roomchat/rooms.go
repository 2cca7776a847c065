// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
)

type roomsParams struct {
	cli.ConnectionFlags
	cli.JSONOutput
}

type roomEntry struct {
	RoomID  string `json:"room_id"`
	Name    string `json:"name,omitempty"`
	Default bool   `json:"default,omitempty"`
}

func roomsCommand() *cli.Command {
	var params roomsParams
	return &cli.Command{
		Name:    "rooms",
		Summary: "List joined rooms",
		Usage:   "roomchat rooms [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			environment, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer environment.Close()

			rooms, err := environment.Service.Rooms()
			if err != nil {
				return cli.Classify(err)
			}
			entries := roomEntries(rooms, environment.Config.DefaultRoom)
			if done, err := params.EmitJSON(entries); done {
				return err
			}

			writer := tabwriter.NewWriter(cli.Stdout, 2, 0, 3, ' ', 0)
			for _, entry := range entries {
				marker := " "
				if entry.Default {
					marker = "*"
				}
				fmt.Fprintf(writer, "%s %s\t%s\n", marker, entry.RoomID, entry.Name)
			}
			return writer.Flush()
		},
	}
}

// roomEntries sorts rooms by display name, case-insensitively, and
// marks the configured default.
func roomEntries(rooms []chat.Room, defaultRoom string) []roomEntry {
	sorted := make([]chat.Room, len(rooms))
	copy(sorted, rooms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].DisplayName()) < strings.ToLower(sorted[j].DisplayName())
	})
	entries := make([]roomEntry, len(sorted))
	for index, room := range sorted {
		entries[index] = roomEntry{
			RoomID:  room.ID.String(),
			Name:    room.Name,
			Default: room.ID.String() == defaultRoom,
		}
	}
	return entries
}
