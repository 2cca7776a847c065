// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/roomchat/lib/netutil"
)

// MatrixError is a structured error response from the homeserver.
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.Code == ErrCodeForbidden { ... }
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the server's human-readable description.
	Message string `json:"error"`
	// RetryAfterMillis is set with M_LIMIT_EXCEEDED.
	RetryAfterMillis int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Matrix error codes the client reacts to.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken  = "M_MISSING_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeTooLarge      = "M_TOO_LARGE"
)

// IsMatrixError reports whether err is a *MatrixError with the given
// code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsAuthError reports whether err means the access token is no longer
// usable. A sync loop receiving one must stop rather than retry.
func IsAuthError(err error) bool {
	return IsMatrixError(err, ErrCodeUnknownToken) || IsMatrixError(err, ErrCodeMissingToken)
}

// StatusError is a non-2xx response without the standard Matrix error
// body, typically a reverse proxy's error page or a wrong base URL.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("messaging: unexpected %d response from %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// responseStatus returns the HTTP status carried by err, if any.
func responseStatus(err error) (int, bool) {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.StatusCode, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

// IsRetryable reports whether a failed request may succeed unchanged
// later: rate limiting, server-side failures, and transient network
// errors. Client errors (4xx other than 429) and malformed responses
// are permanent.
func IsRetryable(err error) bool {
	if status, ok := responseStatus(err); ok {
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}
	return netutil.IsTransient(err)
}
