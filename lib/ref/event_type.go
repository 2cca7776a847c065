// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type.
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. The type
// exists for compile-time safety, so that a state key or msgtype
// cannot be passed where an event type is expected.
type EventType string

// Event types the client reads or writes.
const (
	EventTypeRoomMessage EventType = "m.room.message"
	EventTypeRoomName    EventType = "m.room.name"
	EventTypeRoomMember  EventType = "m.room.member"
)

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }
