// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"sort"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/roomchat/chat"
)

var fuzzyInit sync.Once

// fuzzyResult is one fzf match. Positions index runes of the matched
// text and are sorted ascending.
type fuzzyResult struct {
	Score     int
	Positions []int
}

// fuzzyMatch scores text against pattern with fzf's V2 algorithm,
// ignoring case. A zero Score means no match. An empty pattern
// matches everything with Score 1.
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) fuzzyResult {
	if len(pattern) == 0 {
		return fuzzyResult{Score: 1}
	}
	fuzzyInit.Do(func() { algo.Init("default") })

	lowered := []rune(strings.ToLower(string(pattern)))
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Start < 0 || result.Score <= 0 {
		return fuzzyResult{}
	}
	match := fuzzyResult{Score: result.Score}
	if positions != nil {
		match.Positions = append(match.Positions, (*positions)...)
		sort.Ints(match.Positions)
	}
	return match
}

// roomMatch is a room that survived the switcher filter.
type roomMatch struct {
	room      chat.Room
	score     int
	positions []int
}

// filterRooms returns the rooms matching query, best first. Ties and
// an empty query keep the input order. Rooms are matched on their
// display name, and on their ID when the name does not match.
func filterRooms(rooms []chat.Room, query string, slab *util.Slab) []roomMatch {
	pattern := []rune(strings.TrimSpace(query))
	matches := make([]roomMatch, 0, len(rooms))
	for _, room := range rooms {
		result := fuzzyMatch(room.DisplayName(), pattern, slab)
		if result.Score == 0 && room.Name != "" {
			if byID := fuzzyMatch(room.ID.String(), pattern, slab); byID.Score > 0 {
				result = fuzzyResult{Score: byID.Score}
			}
		}
		if result.Score == 0 {
			continue
		}
		matches = append(matches, roomMatch{room: room, score: result.Score, positions: result.Positions})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	return matches
}
