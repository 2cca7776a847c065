// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"slices"

	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/messaging"
)

// HistoricalMessages returns up to limit of the most recent messages
// in roomID, oldest first. limit <= 0 uses the configured history
// limit.
//
// Messages come from the timeline the sync loop has materialized. When
// it holds fewer than limit messages, one backward /messages request
// from the room's pagination token fetches the shortfall, which is
// prepended. A room the sync loop does not know is ErrInvalidRoom;
// any other failure is ErrHistoryFetchFailed.
func (c *SessionClient) HistoricalMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]Message, error) {
	if err := c.requireRunning(); err != nil {
		return nil, err
	}
	if roomID.IsZero() {
		return nil, ErrInvalidRoom
	}
	if limit <= 0 {
		limit = c.config.HistoryLimit
	}

	room, ok := c.protocol.Room(roomID)
	if !ok {
		c.logger.Warn("history requested for unknown room", "room_id", roomID)
		return nil, ErrInvalidRoom
	}

	recent := c.messageEvents(room.Timeline)
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}

	shortfall := limit - len(recent)
	if shortfall == 0 || c.config.DisableBackfill || room.PaginationToken == "" {
		return recent, nil
	}

	response, err := c.protocol.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:      room.PaginationToken,
		Direction: "b",
		Limit:     shortfall,
	})
	if err != nil {
		c.logger.Warn("loading older messages failed", "room_id", roomID, "error", err)
		return nil, ErrHistoryFetchFailed
	}

	// Backward pagination returns newest first.
	chunk := slices.Clone(response.Chunk)
	slices.Reverse(chunk)
	older := c.messageEvents(chunk)
	if len(older) > shortfall {
		older = older[len(older)-shortfall:]
	}
	c.logger.Debug("history loaded",
		"room_id", roomID,
		"from_timeline", len(recent),
		"from_backfill", len(older),
	)
	return append(older, recent...), nil
}

// messageEvents translates the message events of a chronological
// event slice, skipping state and other event types.
func (c *SessionClient) messageEvents(events []messaging.Event) []Message {
	var messages []Message
	for _, event := range events {
		if event.Type != c.config.MessageType || event.IsState() {
			continue
		}
		messages = append(messages, messageFromEvent(event))
	}
	return messages
}
