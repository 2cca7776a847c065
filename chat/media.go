// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"net/url"
	"strings"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// placeholderAvatarBase generates initials avatars for users without
// one. The seed is the sender's user ID.
const placeholderAvatarBase = "https://api.dicebear.com/7.x/initials/svg?seed="

// ResolveMediaURL turns a media reference into a URL a browser or
// terminal hyperlink can open:
//
//	""                          → ""
//	"https://cdn.example/a.png" → unchanged
//	"mxc://example.org/abc"     → server + "/_matrix/media/v3/download/example.org/abc"
//
// Anything else, including malformed mxc:// URIs, resolves to "".
func ResolveMediaURL(reference, server string) string {
	switch {
	case reference == "":
		return ""
	case strings.HasPrefix(reference, "http://"), strings.HasPrefix(reference, "https://"):
		return reference
	}
	mediaServer, mediaID, err := messaging.SplitContentURI(reference)
	if err != nil {
		return ""
	}
	return strings.TrimRight(server, "/") + "/_matrix/media/v3/download/" +
		url.PathEscape(mediaServer) + "/" + url.PathEscape(mediaID)
}

// AvatarURL returns the resolved avatar for sender, or a generated
// placeholder when avatarReference is empty or unresolvable.
func AvatarURL(sender ref.UserID, avatarReference, server string) string {
	if resolved := ResolveMediaURL(avatarReference, server); resolved != "" {
		return resolved
	}
	return placeholderAvatarBase + url.QueryEscape(sender.String())
}

// ShortName is the label shown for a user without a display name:
// the localpart of the user ID.
func ShortName(userID ref.UserID) string {
	if localpart := userID.Localpart(); localpart != "" {
		return localpart
	}
	return userID.String()
}
