// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/roomchat/lib/ref"
)

// Message types carried in the msgtype field of m.room.message.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
	MsgTypeAudio  = "m.audio"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
	// HomeServer is deprecated by Matrix but still sent by
	// most servers; informational only.
	HomeServer string `json:"home_server,omitempty"`
}

// MessageContent is the content of a text-like m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// AudioContent is the content of an m.audio message.
type AudioContent struct {
	MsgType string    `json:"msgtype"`
	Body    string    `json:"body"`
	URL     string    `json:"url"`
	Info    AudioInfo `json:"info"`
}

// AudioInfo describes an uploaded audio clip.
type AudioInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	// Duration in milliseconds.
	Duration int64 `json:"duration,omitempty"`
}

// NewAudioMessage creates an m.audio message referencing an uploaded
// content URI.
func NewAudioMessage(body, contentURI string, info AudioInfo) AudioContent {
	return AudioContent{MsgType: MsgTypeAudio, Body: body, URL: contentURI, Info: info}
}

// Event is a Matrix event as delivered by /sync and /messages.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	// RoomID is absent from /sync timeline events; SyncClient fills it
	// in before storing or dispatching.
	RoomID   ref.RoomID     `json:"room_id,omitempty"`
	StateKey *string        `json:"state_key,omitempty"`
	Unsigned *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// ContentString returns a top-level string field of the content, or
// "" when absent or not a string.
func (e Event) ContentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// IsState reports whether the event carries a state key.
func (e Event) IsState() bool { return e.StateKey != nil }

// RoomMessagesOptions controls /messages pagination.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means the live end
	Direction string // "b" (older) or "f" (newer); default "b"
	Limit     int    // 0 uses the server default
	Filter    string // optional RoomEventFilter JSON
}

// RoomMessagesResponse is returned by RoomMessages. With direction
// "b" the chunk is newest first.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls a single /sync request.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; empty for initial
	Timeout    int    // long-poll hold in milliseconds
	SetTimeout bool   // send timeout even when zero
	Filter     string // filter ID or inline JSON
}

// SyncResponse is the top-level /sync response.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection holds per-room sync data by membership.
type RoomsSection struct {
	Join  map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
	Leave map[ref.RoomID]LeftRoom   `json:"leave,omitempty"`
}

// JoinedRoom is sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// LeftRoom is sync data for a room the user left or was removed from.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection is a room's timeline slice in a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection is the state delta preceding a timeline slice.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// UploadResponse is returned by the media upload endpoint.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// ProfileResponse is a user's global profile.
type ProfileResponse struct {
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RoomNameContent is the content of m.room.name.
type RoomNameContent struct {
	Name string `json:"name"`
}
