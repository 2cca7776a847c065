// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
)

type sendParams struct {
	cli.ConnectionFlags
	cli.JSONOutput
	Room string `json:"room" flag:"room" desc:"room ID (default: the configured default_room)"`
}

func sendCommand() *cli.Command {
	var params sendParams
	return &cli.Command{
		Name:    "send",
		Summary: "Send a text message",
		Description: `Send a text message to the room and print its event ID.

The message is the arguments joined with spaces. With no arguments, or
the single argument "-", the message is read from stdin.`,
		Usage: "roomchat send [flags] <text>...",
		Examples: []cli.Example{
			{Description: "Send to the default room", Command: `roomchat send "deploy finished"`},
			{Description: "Send a file's contents", Command: "roomchat send --room '!abc:example.org' - < notes.md"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			text, err := messageText(args, os.Stdin)
			if err != nil {
				return err
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
			eventID, err := environment.Service.SendMessage(ctx, roomID, text)
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(map[string]string{"event_id": eventID.String(), "room_id": roomID.String()}); done {
				return err
			}
			return printEventID(eventID)
		},
	}
}

// messageText joins args, or reads stdin for no args or "-". Blank
// messages are rejected here; the length limit is enforced by the
// session.
func messageText(args []string, stdin io.Reader) (string, error) {
	var text string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", cli.Internal("reading stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\r\n")
	} else {
		text = strings.Join(args, " ")
	}
	if strings.TrimSpace(text) == "" {
		return "", cli.Validation("message is empty")
	}
	return text, nil
}
