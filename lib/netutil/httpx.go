// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads and classifies network
// errors for the homeserver client.
//
// JSON responses are read up to MaxResponseSize so that a misbehaving
// server cannot exhaust memory. Media downloads use ReadLimited with a
// caller-chosen bound.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// MaxResponseSize bounds JSON API response bodies: 64 MB. An initial
// /sync of a busy account is the largest response the client reads.
const MaxResponseSize int64 = 64 << 20

// ErrResponseTooLarge is returned by ReadLimited when the body exceeds
// the limit.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadResponse reads a JSON API response body up to MaxResponseSize.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadLimited reads at most limit bytes and fails with
// ErrResponseTooLarge if more are available.
func ReadLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// ErrorBody returns an error response body as a string for diagnostics.
// Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	return string(data)
}

// IsTransient reports whether err is a network failure worth retrying:
// timeouts, refused or reset connections, and unexpected EOFs from a
// server restarting mid-response. Context cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ECONNREFUSED || errno == syscall.ECONNRESET || errno == syscall.EPIPE
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
