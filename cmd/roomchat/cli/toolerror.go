// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/roomchat/chat"
)

// ErrorCategory classifies command errors so that scripts can decide
// whether to fix the input, retry, or report, using only the exit code.
type ErrorCategory string

const (
	// CategoryValidation indicates the caller provided invalid input:
	// missing arguments, malformed room IDs, unparseable flags.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced resource does not exist:
	// no saved session, missing audio file.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden indicates the homeserver rejected the
	// credentials.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryTransient indicates a temporary failure: network error,
	// timeout, failed send. Retrying may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected error: bugs, I/O
	// failures, corrupt local state.
	CategoryInternal ErrorCategory = "internal"
)

// exitCodes maps each category to the process exit code.
var exitCodes = map[ErrorCategory]int{
	CategoryInternal:   1,
	CategoryValidation: 2,
	CategoryNotFound:   3,
	CategoryForbidden:  4,
	CategoryTransient:  5,
}

// ToolError is a categorized error returned by CLI commands. It wraps
// an inner error, preserving the chain for errors.Is and errors.As.
// Use the category constructors rather than building one directly.
type ToolError struct {
	// Category classifies the error for programmatic handling.
	Category ErrorCategory

	// Err is the underlying error with the human-readable message.
	Err error

	// Hint is an optional next step appended to the message, such as
	// the command that fixes the problem.
	Hint string
}

// Error returns the underlying message followed by the hint, if any.
func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for the error's category.
func (e *ToolError) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithHint sets the hint and returns the receiver for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error: a referenced resource does not exist.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Forbidden creates a forbidden error: the credentials were rejected.
func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify wraps a chat-layer error in the matching category. Errors
// that already carry a category, and nil, are returned unchanged.
// Anything unrecognized is internal.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return err
	}
	var chatError *chat.Error
	if !errors.As(err, &chatError) {
		return &ToolError{Category: CategoryInternal, Err: err}
	}
	switch chatError.Kind {
	case chat.KindInvalidServerURL, chat.KindInvalidRoom, chat.KindMessageTooLong:
		return &ToolError{Category: CategoryValidation, Err: err}
	case chat.KindLoginFailed:
		return &ToolError{Category: CategoryForbidden, Err: err}
	case chat.KindSessionExpired:
		return (&ToolError{Category: CategoryForbidden, Err: err}).WithHint(`Run "roomchat login <username>" again.`)
	case chat.KindNotLoggedIn:
		return (&ToolError{Category: CategoryNotFound, Err: err}).WithHint(`Run "roomchat login" first.`)
	case chat.KindInitializationTimeout, chat.KindMessageSendFailed,
		chat.KindHistoryFetchFailed, chat.KindVoiceSendFailed:
		return &ToolError{Category: CategoryTransient, Err: err}
	default:
		return &ToolError{Category: CategoryInternal, Err: err}
	}
}
