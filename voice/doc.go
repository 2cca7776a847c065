// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package voice records, previews, and plays short voice messages.
//
// A [Recorder] reads signed 16-bit little-endian mono PCM from a
// [Source] (normally [CommandSource] running arecord or parecord) and
// moves through Idle → Recording → Stopped, or back to Idle when
// nothing was captured. While recording it counts elapsed seconds on
// an injected clock. Stopping yields a [Clip]: the samples plus their
// WAV encoding, ready to upload as audio/wav. [Clip.Waveform] reduces
// a clip to peak buckets for a one-line preview, and a [Player] plays
// a clip through an external command, independently of the recorder.
package voice
