// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
	"github.com/bureau-foundation/roomchat/lib/codec"
	"github.com/bureau-foundation/roomchat/lib/ref"
)

// messageRecord is the exported form of a message for --format json
// and cbor, and for "watch --json" lines.
type messageRecord struct {
	EventID     ref.EventID `json:"event_id"`
	RoomID      ref.RoomID  `json:"room_id"`
	Sender      ref.UserID  `json:"sender"`
	DisplayName string      `json:"display_name,omitempty"`
	MsgType     string      `json:"msgtype"`
	Body        string      `json:"body"`
	MediaURL    string      `json:"media_url,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// newMessageRecord resolves the message's media reference against
// server.
func newMessageRecord(message chat.Message, server string) messageRecord {
	return messageRecord{
		EventID:     message.ID,
		RoomID:      message.RoomID,
		Sender:      message.Sender,
		DisplayName: message.DisplayName,
		MsgType:     message.Kind,
		Body:        message.Content,
		MediaURL:    chat.ResolveMediaURL(message.MediaURL, server),
		Timestamp:   message.Timestamp.UTC(),
	}
}

// Output formats for "history".
const (
	formatText = "text"
	formatJSON = "json"
	formatCBOR = "cbor"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatCBOR:
		return nil
	}
	return cli.Validation("unknown --format %q (want text, json, or cbor)", format)
}

// writeMessages writes messages to w in format.
func writeMessages(w io.Writer, format string, messages []chat.Message, server string) error {
	if format == formatText {
		for _, message := range messages {
			if _, err := io.WriteString(w, formatLine(message, server)+"\n"); err != nil {
				return err
			}
		}
		return nil
	}

	records := make([]messageRecord, len(messages))
	for index, message := range messages {
		records[index] = newMessageRecord(message, server)
	}
	if format == formatCBOR {
		return codec.NewEncoder(w).Encode(records)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

// formatLine renders one message for a terminal:
//
//	2026-03-01 14:05  Alice: hello
//	2026-03-01 14:06  bob: ♪ Voice message https://…/download/…
//
// Continuation lines of a multi-line body are indented under the
// first.
func formatLine(message chat.Message, server string) string {
	name := message.DisplayName
	if name == "" {
		name = chat.ShortName(message.Sender)
	}
	prefix := message.Timestamp.Local().Format("2006-01-02 15:04") + "  " + name + ": "

	body := message.Content
	if message.IsAudio() {
		body = "♪ " + body
		if link := chat.ResolveMediaURL(message.MediaURL, server); link != "" {
			body += " " + link
		}
	}
	indent := strings.Repeat(" ", len([]rune(prefix)))
	return prefix + strings.ReplaceAll(body, "\n", "\n"+indent)
}

// resolveDisplayNames fills DisplayName from the service's profile
// directory, fetching each sender once.
func resolveDisplayNames(service *chat.Service, messages []chat.Message) {
	profiles := service.Profiles()
	seen := make(map[ref.UserID]struct{})
	var senders []ref.UserID
	for _, message := range messages {
		if _, ok := seen[message.Sender]; ok {
			continue
		}
		seen[message.Sender] = struct{}{}
		senders = append(senders, message.Sender)
	}
	profiles.RequestAll(senders)
	profiles.Wait()
	for index := range messages {
		if profile, ok := profiles.Lookup(messages[index].Sender); ok {
			messages[index].DisplayName = profile.DisplayName
		}
	}
}

func printEventID(eventID ref.EventID) error {
	_, err := fmt.Fprintln(cli.Stdout, eventID)
	return err
}
