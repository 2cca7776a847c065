// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references for the
// Matrix identifiers a chat client handles: user IDs, room IDs, event
// IDs, server names, and event types.
//
// All parsers validate the structural format of their input and return
// errors for malformed identifiers. Once constructed, a ref is an
// immutable value type whose zero value means "unset"; use IsZero to
// check.
//
// The canonical serialization form is the full Matrix identifier
// (@localpart:server, !opaque:server, $opaque). JSON and YAML
// marshaling use this form via encoding.TextMarshaler.
//
// FormatAccountID turns whatever a user typed into a login form into a
// fully qualified user ID for the configured homeserver.
package ref
