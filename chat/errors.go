// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "fmt"

// ErrorKind classifies an *Error.
type ErrorKind int

const (
	KindInvalidServerURL ErrorKind = iota + 1
	KindLoginFailed
	KindNotInitialized
	KindNotLoggedIn
	KindInitializationTimeout
	KindMessageTooLong
	KindMessageSendFailed
	KindInvalidRoom
	KindHistoryFetchFailed
	KindVoiceSendFailed
	KindSessionExpired
)

var kindNames = map[ErrorKind]string{
	KindInvalidServerURL:      "invalid_server_url",
	KindLoginFailed:           "login_failed",
	KindNotInitialized:        "not_initialized",
	KindNotLoggedIn:           "not_logged_in",
	KindInitializationTimeout: "initialization_timeout",
	KindMessageTooLong:        "message_too_long",
	KindMessageSendFailed:     "message_send_failed",
	KindInvalidRoom:           "invalid_room",
	KindHistoryFetchFailed:    "history_fetch_failed",
	KindVoiceSendFailed:       "voice_send_failed",
	KindSessionExpired:        "session_expired",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a user-facing failure. Message is suitable for display as
// is; the underlying cause, if any, has already been logged.
//
// Two *Error values match under errors.Is when their kinds are equal,
// so an error with a specific message still matches its sentinel:
//
//	if errors.Is(err, chat.ErrMessageTooLong) { ... }
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// Sentinels for errors.Is. Their messages are the ones shown to users.
var (
	ErrInvalidServerURL      = &Error{Kind: KindInvalidServerURL, Message: "Invalid server URL"}
	ErrLoginFailed           = &Error{Kind: KindLoginFailed, Message: "Login failed: Invalid credentials or server unavailable"}
	ErrNotInitialized        = &Error{Kind: KindNotInitialized, Message: "Client not initialized"}
	ErrNotLoggedIn           = &Error{Kind: KindNotLoggedIn, Message: "Not logged in"}
	ErrInitializationTimeout = &Error{Kind: KindInitializationTimeout, Message: "Client initialization timeout"}
	ErrMessageTooLong        = &Error{Kind: KindMessageTooLong, Message: "Message too long"}
	ErrMessageSendFailed     = &Error{Kind: KindMessageSendFailed, Message: "Failed to send message. Please try again."}
	ErrInvalidRoom           = &Error{Kind: KindInvalidRoom, Message: "Invalid room ID format"}
	ErrHistoryFetchFailed    = &Error{Kind: KindHistoryFetchFailed, Message: "Failed to load message history"}
	ErrVoiceSendFailed       = &Error{Kind: KindVoiceSendFailed, Message: "Failed to send voice message. Please try again."}
	ErrSessionExpired        = &Error{Kind: KindSessionExpired, Message: "Session expired. Please log in again."}
)

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
