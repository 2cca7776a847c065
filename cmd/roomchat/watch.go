// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
	"github.com/bureau-foundation/roomchat/lib/ref"
)

type watchParams struct {
	cli.ConnectionFlags
	Room     string `json:"room"      flag:"room"      desc:"room ID (default: the configured default_room)"`
	AllRooms bool   `json:"all_rooms" flag:"all-rooms" desc:"print messages from every joined room"`
	Count    int    `json:"count"     flag:"count,c"   desc:"exit after this many messages (0: run until interrupted)"`
	JSON     bool   `json:"-"         flag:"json"      desc:"print one JSON object per line"`
}

func watchCommand() *cli.Command {
	var params watchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Print new messages as they arrive",
		Description: `Follow the room and print each new message as it arrives, until
interrupted. Messages already in the room when watch starts are not
printed; use "roomchat history" for those.

If the sync loop stops (the session was logged out elsewhere, or the
homeserver went away for good), watch exits with a transient error.`,
		Usage: "roomchat watch [flags]",
		Examples: []cli.Example{
			{Description: "Follow the default room", Command: "roomchat watch"},
			{Description: "Wait for the next message in any room, as JSON", Command: "roomchat watch --all-rooms --count 1 --json"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Count < 0 {
				return cli.Validation("--count must not be negative")
			}

			environment, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer environment.Close()

			var roomID ref.RoomID
			if !params.AllRooms {
				if roomID, err = environment.Room(params.Room); err != nil {
					return err
				}
			}
			session := environment.Service.Session()
			if session == nil {
				return cli.Classify(chat.ErrNotLoggedIn)
			}
			server := session.Homeserver()

			// The callback runs on the sync goroutine. stopped releases
			// it when this function returns before the session closes.
			incoming := make(chan chat.Message, 64)
			stopped := make(chan struct{})
			subscription := environment.Service.Subscribe(func(message chat.Message) {
				if !roomID.IsZero() && message.RoomID != roomID {
					return
				}
				select {
				case incoming <- message:
				case <-stopped:
				}
			})
			defer func() {
				close(stopped)
				environment.Service.Unsubscribe(subscription)
			}()

			logger.Info("watching", "room_id", roomID, "all_rooms", params.AllRooms)
			printed := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-session.Done():
					return cli.Transient("sync stopped: %v", session.Err())
				case message := <-incoming:
					resolveDisplayNames(environment.Service, []chat.Message{message})
					if err := printLive(message, server, params.JSON); err != nil {
						return cli.Internal("writing output: %w", err)
					}
					printed++
					if params.Count > 0 && printed >= params.Count {
						return nil
					}
				}
			}
		},
	}
}

func printLive(message chat.Message, server string, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(cli.Stdout).Encode(newMessageRecord(message, server))
	}
	_, err := fmt.Fprintln(cli.Stdout, formatLine(message, server))
	return err
}
