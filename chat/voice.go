// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// VoiceMessageBody is the body text of every voice message.
const VoiceMessageBody = "Voice message"

// AudioClip is an encoded recording ready to upload.
type AudioClip struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// SendVoiceMessage uploads clip and sends an m.audio message that
// references it. Any failure, including an empty clip, is
// ErrVoiceSendFailed.
func (c *SessionClient) SendVoiceMessage(ctx context.Context, roomID ref.RoomID, clip AudioClip) (ref.EventID, error) {
	if err := c.requireRunning(); err != nil {
		return ref.EventID{}, err
	}
	if len(clip.Data) == 0 {
		c.logger.Warn("refusing to send an empty voice clip", "room_id", roomID)
		return ref.EventID{}, ErrVoiceSendFailed
	}
	mimeType := clip.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	contentURI, err := c.protocol.UploadMedia(ctx, messaging.MediaUpload{
		ContentType: mimeType,
		Filename:    voiceFilename(clip.Data, mimeType),
		Body:        bytes.NewReader(clip.Data),
		Size:        int64(len(clip.Data)),
	})
	if err != nil {
		c.logger.Warn("uploading voice clip failed", "room_id", roomID, "bytes", len(clip.Data), "error", err)
		return ref.EventID{}, ErrVoiceSendFailed
	}

	content := messaging.NewAudioMessage(VoiceMessageBody, contentURI, messaging.AudioInfo{
		MimeType: mimeType,
		Size:     int64(len(clip.Data)),
		Duration: clip.Duration.Milliseconds(),
	})
	eventID, err := c.protocol.SendEvent(ctx, roomID, c.config.MessageType, content)
	if err != nil {
		c.logger.Warn("sending voice message failed", "room_id", roomID, "content_uri", contentURI, "error", err)
		return ref.EventID{}, ErrVoiceSendFailed
	}
	c.logger.Info("voice message sent", "room_id", roomID, "event_id", eventID, "duration", clip.Duration)
	return eventID, nil
}

// voiceFilename names an upload after a prefix of its BLAKE3 digest,
// so re-sending the same clip yields the same name.
func voiceFilename(data []byte, mimeType string) string {
	digest := blake3.Sum256(data)
	name := "voice-" + hex.EncodeToString(digest[:8])
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return name + ".wav"
	case "audio/ogg":
		return name + ".ogg"
	case "audio/webm":
		return name + ".webm"
	default:
		return name
	}
}
