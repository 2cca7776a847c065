// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidServerURL is returned (wrapped) by FormatAccountID when the
// homeserver address cannot be parsed as a URL with a hostname.
var ErrInvalidServerURL = errors.New("invalid server URL")

// FormatAccountID normalizes a login-form username into the account
// identifier sent to the homeserver.
//
// A username that already contains a ':' is taken to carry its own
// server and is returned unchanged, whether or not it has the '@'
// sigil. Otherwise the hostname of serverURL becomes the server part:
//
//	FormatAccountID("alice", "https://example.org")         → "@alice:example.org"
//	FormatAccountID("alice", "https://example.org:8448/")   → "@alice:example.org"
//	FormatAccountID("@bob:other.net", "https://example.org") → "@bob:other.net"
//
// The port is dropped: Matrix server names in user IDs come from the
// homeserver's delegated name, which for a plain client URL is its
// hostname.
func FormatAccountID(username, serverURL string) (string, error) {
	if strings.Contains(username, ":") {
		return username, nil
	}
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidServerURL, serverURL, err)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("%w %q: no hostname", ErrInvalidServerURL, serverURL)
	}
	return "@" + username + ":" + hostname, nil
}
