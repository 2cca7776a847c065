// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"time"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// Message is one chat message as shown in a room view.
//
// The log stores messages without profile data. AvatarURL and
// DisplayName are filled in by RoomView.Messages from the profile
// directory at read time.
type Message struct {
	ID        ref.EventID
	Content   string
	Sender    ref.UserID
	Timestamp time.Time
	RoomID    ref.RoomID

	AvatarURL   string
	DisplayName string

	// Kind is the msgtype: m.text, m.notice, m.emote, m.audio, ...
	Kind string
	// MediaURL is the content URI of an audio (or other media)
	// message. Empty for text.
	MediaURL string
}

// IsAudio reports whether the message is a voice or audio clip.
func (m Message) IsAudio() bool { return m.Kind == messaging.MsgTypeAudio }

// Room is a joined room as listed by the room switcher.
type Room struct {
	ID   ref.RoomID
	Name string
}

// DisplayName returns the room name, or its ID when it has none.
func (r Room) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID.String()
}

// Profile is a user's display name and avatar reference. Either may
// be empty. AvatarURL is the raw reference (usually mxc://); resolve
// it with ResolveMediaURL.
type Profile struct {
	AvatarURL   string
	DisplayName string
}

// messageFromEvent translates a timeline event. The caller has
// already checked the event type.
func messageFromEvent(event messaging.Event) Message {
	kind := event.ContentString("msgtype")
	if kind == "" {
		kind = messaging.MsgTypeText
	}
	return Message{
		ID:        event.EventID,
		Content:   event.ContentString("body"),
		Sender:    event.Sender,
		Timestamp: time.UnixMilli(event.OriginServerTS),
		RoomID:    event.RoomID,
		Kind:      kind,
		MediaURL:  event.ContentString("url"),
	}
}

// ParseRoomID validates a room ID typed by a user or read from
// configuration. Malformed input is ErrInvalidRoom.
func ParseRoomID(raw string) (ref.RoomID, error) {
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		return ref.RoomID{}, ErrInvalidRoom
	}
	return roomID, nil
}
