// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MimeType is the content type of Clip.WAV.
const MimeType = "audio/wav"

// DefaultSampleRate is used when a recorder or source has none.
const DefaultSampleRate = 16000

const (
	bitDepth       = 16
	channels       = 1
	wavAudioFormat = 1 // PCM
)

// Clip is a finished mono recording.
type Clip struct {
	samples    []int
	sampleRate int
	wav        []byte
}

// NewClip encodes samples as a 16-bit mono WAV file.
func NewClip(samples []int, sampleRate int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("voice: invalid sample rate %d", sampleRate)
	}
	output := &memoryFile{}
	encoder := wav.NewEncoder(output, sampleRate, bitDepth, channels, wavAudioFormat)
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(buffer); err != nil {
		return nil, fmt.Errorf("voice: encoding WAV: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("voice: finishing WAV: %w", err)
	}
	return &Clip{samples: samples, sampleRate: sampleRate, wav: output.data}, nil
}

// DecodeClip parses a WAV file, such as a downloaded voice message.
// Multi-channel audio is reduced to its first channel.
func DecodeClip(data []byte) (*Clip, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, errors.New("voice: not a valid WAV file")
	}
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("voice: decoding WAV: %w", err)
	}
	channelCount := int(decoder.NumChans)
	if channelCount <= 0 {
		channelCount = 1
	}
	samples := make([]int, 0, len(buffer.Data)/channelCount)
	for index := 0; index < len(buffer.Data); index += channelCount {
		samples = append(samples, buffer.Data[index])
	}
	return &Clip{samples: samples, sampleRate: int(decoder.SampleRate), wav: data}, nil
}

// WAV returns the encoded file. Callers must not modify it.
func (c *Clip) WAV() []byte { return c.wav }

// Size returns the encoded size in bytes.
func (c *Clip) Size() int64 { return int64(len(c.wav)) }

// SampleRate returns the sample rate in Hz.
func (c *Clip) SampleRate() int { return c.sampleRate }

// SampleCount returns the number of samples.
func (c *Clip) SampleCount() int { return len(c.samples) }

// Duration returns the playing time.
func (c *Clip) Duration() time.Duration {
	if c.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.samples)) * time.Second / time.Duration(c.sampleRate)
}

// Waveform divides the clip into buckets and returns each bucket's
// peak amplitude scaled to [0, 1]. Fewer samples than buckets yields
// one bucket per sample.
func (c *Clip) Waveform(buckets int) []float64 {
	if buckets <= 0 || len(c.samples) == 0 {
		return nil
	}
	if buckets > len(c.samples) {
		buckets = len(c.samples)
	}
	peaks := make([]float64, buckets)
	for bucket := range buckets {
		start := bucket * len(c.samples) / buckets
		end := (bucket + 1) * len(c.samples) / buckets
		peak := 0
		for _, sample := range c.samples[start:end] {
			if sample < 0 {
				sample = -sample
			}
			peak = max(peak, sample)
		}
		peaks[bucket] = min(float64(peak)/32768, 1)
	}
	return peaks
}

// FormatTime renders a duration as m:ss, the way the recorder shows
// elapsed time.
func FormatTime(d time.Duration) string {
	seconds := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// memoryFile is an in-memory io.WriteSeeker: the WAV encoder seeks
// back to patch chunk sizes after writing the samples.
type memoryFile struct {
	data   []byte
	offset int64
}

func (f *memoryFile) Write(p []byte) (int, error) {
	end := f.offset + int64(len(p))
	if end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[f.offset:end], p)
	f.offset = end
	return len(p), nil
}

func (f *memoryFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		base = int64(len(f.data))
	default:
		return 0, fmt.Errorf("voice: invalid whence %d", whence)
	}
	target := base + offset
	if target < 0 {
		return 0, errors.New("voice: negative seek position")
	}
	f.offset = target
	return target, nil
}
