// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test
// binary, for transaction IDs and message bodies that must be
// distinguishable.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// UniqueEventID returns a fresh Matrix-style event ID ("$evt-N").
func UniqueEventID() string {
	return "$" + UniqueID("evt")
}
