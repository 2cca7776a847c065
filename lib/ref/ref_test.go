// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bureau-foundation/roomchat/lib/ref"
)

func TestFormatAccountID(t *testing.T) {
	tests := []struct {
		name     string
		username string
		server   string
		want     string
		wantErr  bool
	}{
		{name: "bare", username: "alice", server: "https://example.org", want: "@alice:example.org"},
		{name: "port-dropped", username: "alice", server: "https://example.org:8448", want: "@alice:example.org"},
		{name: "trailing-path", username: "bob", server: "https://matrix.example.org/", want: "@bob:matrix.example.org"},
		{name: "qualified", username: "@carol:other.net", server: "https://example.org", want: "@carol:other.net"},
		{name: "qualified-ignores-bad-server", username: "@carol:other.net", server: "::::", want: "@carol:other.net"},
		{name: "colon-without-sigil", username: "dave:other.net", server: "https://example.org", want: "dave:other.net"},
		{name: "malformed-server", username: "alice", server: "http://[::1", wantErr: true},
		{name: "no-hostname", username: "alice", server: "not a url", wantErr: true},
		{name: "empty-server", username: "alice", server: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ref.FormatAccountID(tt.username, tt.server)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FormatAccountID(%q, %q) = %q, want error", tt.username, tt.server, got)
				}
				if !errors.Is(err, ref.ErrInvalidServerURL) {
					t.Errorf("error %v does not wrap ErrInvalidServerURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatAccountID(%q, %q): %v", tt.username, tt.server, err)
			}
			if got != tt.want {
				t.Errorf("FormatAccountID(%q, %q) = %q, want %q", tt.username, tt.server, got, tt.want)
			}
		})
	}
}

func TestParseUserID(t *testing.T) {
	tests := []struct {
		raw       string
		localpart string
		server    string
		wantErr   bool
	}{
		{raw: "@alice:example.org", localpart: "alice", server: "example.org"},
		{raw: "@bot:matrix.example.org:8448", localpart: "bot", server: "matrix.example.org:8448"},
		{raw: "", wantErr: true},
		{raw: "alice:example.org", wantErr: true},
		{raw: "@alice", wantErr: true},
		{raw: "@:example.org", wantErr: true},
		{raw: "@alice:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			userID, err := ref.ParseUserID(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseUserID(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUserID(%q): %v", tt.raw, err)
			}
			if userID.Localpart() != tt.localpart {
				t.Errorf("Localpart() = %q, want %q", userID.Localpart(), tt.localpart)
			}
			if userID.Server().String() != tt.server {
				t.Errorf("Server() = %q, want %q", userID.Server(), tt.server)
			}
		})
	}
}

func TestParseRoomID(t *testing.T) {
	valid := []string{"!IrwcvKRWDxTHuwwtMi:messenger.b1.shuwantech.com", "!a:b"}
	for _, raw := range valid {
		if _, err := ref.ParseRoomID(raw); err != nil {
			t.Errorf("ParseRoomID(%q): %v", raw, err)
		}
	}
	invalid := []string{"", "#alias:example.org", "!noserver", "!:example.org", "!abc:"}
	for _, raw := range invalid {
		if _, err := ref.ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q) succeeded, want error", raw)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ref.ParseEventID("$abc"); err != nil {
		t.Errorf("ParseEventID($abc): %v", err)
	}
	for _, raw := range []string{"", "$", "abc"} {
		if _, err := ref.ParseEventID(raw); err == nil {
			t.Errorf("ParseEventID(%q) succeeded, want error", raw)
		}
	}
}

func TestJSONTextMarshaling(t *testing.T) {
	type envelope struct {
		Sender ref.UserID  `json:"sender"`
		Room   ref.RoomID  `json:"room_id"`
		Event  ref.EventID `json:"event_id"`
	}
	original := envelope{
		Sender: ref.MustParseUserID("@alice:example.org"),
		Room:   ref.MustParseRoomID("!room:example.org"),
		Event:  ref.MustParseEventID("$event"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"sender":"@alice:example.org","room_id":"!room:example.org","event_id":"$event"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var decoded envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("Unmarshal = %+v, want %+v", decoded, original)
	}

	if err := json.Unmarshal([]byte(`{"sender":"not-a-user"}`), &decoded); err == nil {
		t.Error("Unmarshal accepted malformed user ID")
	}

	var empty envelope
	if err := json.Unmarshal([]byte(`{"sender":"","room_id":"","event_id":""}`), &empty); err != nil {
		t.Fatalf("Unmarshal empty: %v", err)
	}
	if !empty.Sender.IsZero() || !empty.Room.IsZero() || !empty.Event.IsZero() {
		t.Errorf("empty strings did not produce zero values: %+v", empty)
	}
}
