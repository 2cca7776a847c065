// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the application core of roomchat: login, the
// session client wrapping the Matrix sync loop, the service facade
// that owns it, and the per-room view model the terminal UI renders.
//
// Layers, bottom up:
//
//   - [Authenticate] exchanges a username and password for
//     [Credentials]. Every failure is reported as [ErrLoginFailed].
//   - [SessionClient] wraps a [Protocol] (normally a
//     *messaging.SyncClient) with a Uninitialized → Starting → Running
//     → Stopped state machine, message send with length validation,
//     history loading with one-shot backfill, and a subscription
//     registry that attaches the protocol listener only while someone
//     is subscribed.
//   - [Service] owns at most one SessionClient and re-broadcasts live
//     messages to its own subscribers through a single internal
//     handler.
//   - [RoomView] loads one room's history, follows live messages for
//     it, and joins the message log with the [ProfileDirectory] on
//     read so late profile lookups re-label messages already shown.
//
// Errors returned across the package boundary are *Error values that
// match the exported sentinels with errors.Is. Transport causes are
// logged, not returned.
package chat
