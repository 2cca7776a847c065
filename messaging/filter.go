// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
)

// SyncFilter configures what the sync loop asks the homeserver for.
type SyncFilter struct {
	// TimelineLimit caps timeline events per room per /sync response.
	// The initial sync window. Zero means the server default.
	TimelineLimit int

	// TimelineTypes restricts timeline events to these event types.
	// Empty means all types.
	TimelineTypes []string

	// Rooms restricts the sync to these rooms. Empty means all joined
	// rooms.
	Rooms []string
}

// inline renders the filter as the inline JSON accepted by the /sync
// filter parameter. Presence and account data are always excluded and
// member state is lazy-loaded: the client needs room names and the
// message timeline, not full member lists.
func (f SyncFilter) inline() string {
	timeline := map[string]any{}
	if f.TimelineLimit > 0 {
		timeline["limit"] = f.TimelineLimit
	}
	if len(f.TimelineTypes) > 0 {
		timeline["types"] = f.TimelineTypes
	}

	roomFilter := map[string]any{
		"timeline": timeline,
		"state":    map[string]any{"lazy_load_members": true},
		"ephemeral": map[string]any{
			"types": []string{},
		},
		"account_data": map[string]any{"types": []string{}},
	}
	if len(f.Rooms) > 0 {
		roomFilter["rooms"] = f.Rooms
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}
	data, _ := json.Marshal(top)
	return string(data)
}
