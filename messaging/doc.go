// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is roomchat's Matrix client-server API client.
//
// [Client] is unauthenticated: it holds the homeserver URL and HTTP
// transport and performs password login. Login returns a [Session],
// which carries the access token in a secret.Buffer and exposes the
// authenticated endpoints the chat client needs: sending events,
// backward pagination through /messages, /sync, media upload and
// download, profiles, joined rooms, and logout.
//
// [SyncClient] runs the /sync loop for a Session in a background
// goroutine. It materializes a timeline per joined room (bounded, with
// the pagination token needed to fetch older history), tracks room
// names, signals readiness after the first successful sync, and
// dispatches every new timeline event to registered listeners in the
// order the homeserver delivered them.
//
// API errors are returned as [*MatrixError] carrying the Matrix error
// code and HTTP status; [IsMatrixError] tests for a code. Request URLs
// are built by string concatenation with url.PathEscape on each
// segment, never through url.URL, so room IDs containing reserved
// characters are not double-encoded.
package messaging
