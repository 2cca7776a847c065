// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package voice

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/roomchat/lib/clock"
)

// State is the recorder's lifecycle position.
type State int

const (
	// StateIdle: nothing recorded, or the last recording was discarded.
	StateIdle State = iota

	// StateRecording: capture is in progress.
	StateRecording

	// StateStopped: a clip is ready to preview, send, or discard.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrAlreadyRecording is returned by Start during a capture.
	ErrAlreadyRecording = errors.New("voice: already recording")

	// ErrNotRecording is returned by Stop when no capture is running.
	ErrNotRecording = errors.New("voice: not recording")

	// ErrEmptyRecording is returned by Stop when the source produced
	// no samples. The recorder returns to StateIdle.
	ErrEmptyRecording = errors.New("voice: recording is empty")
)

// RecorderConfig configures a Recorder. Source is required.
type RecorderConfig struct {
	Source Source

	// SampleRate of the PCM stream. Default: DefaultSampleRate.
	SampleRate int

	// Clock drives the elapsed-time counter. Default: clock.Real().
	Clock clock.Clock

	// MaxDuration ends the capture once this much audio has been
	// read. Zero means no limit.
	MaxDuration time.Duration

	Logger *slog.Logger
}

// Recorder captures one clip at a time. Safe for concurrent use.
type Recorder struct {
	source      Source
	sampleRate  int
	clock       clock.Clock
	maxDuration time.Duration
	logger      *slog.Logger

	// ticks carries the elapsed time after each one-second tick. The
	// newest value replaces an unread one.
	ticks chan time.Duration

	mu      sync.Mutex
	state   State
	elapsed time.Duration
	clip    *Clip
	capture *capture
}

// NewRecorder creates an idle recorder.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	if config.Source == nil {
		return nil, errors.New("voice: recorder requires a source")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Recorder{
		source:      config.Source,
		sampleRate:  config.SampleRate,
		clock:       config.Clock,
		maxDuration: config.MaxDuration,
		logger:      config.Logger,
		ticks:       make(chan time.Duration, 1),
	}, nil
}

// capture is one running recording.
type capture struct {
	stream     io.ReadCloser
	ticker     *clock.Ticker
	maxSamples int

	// samples and readErr are owned by the read goroutine until done
	// is closed.
	samples []int
	readErr error
	done    chan struct{}

	stopTicking chan struct{}
	stopping    atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// Start opens the source and begins capturing. Any previous clip is
// discarded. The elapsed counter restarts at zero.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return ErrAlreadyRecording
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("voice: opening source: %w", err)
	}

	current := &capture{
		stream:      stream,
		ticker:      r.clock.NewTicker(time.Second),
		done:        make(chan struct{}),
		stopTicking: make(chan struct{}),
	}
	if r.maxDuration > 0 {
		current.maxSamples = int(r.maxDuration.Seconds() * float64(r.sampleRate))
	}

	r.state = StateRecording
	r.elapsed = 0
	r.clip = nil
	r.capture = current
	r.drainTicks()

	go current.read()
	go r.count(current)

	r.logger.Info("voice recording started", "sample_rate", r.sampleRate)
	return nil
}

// read decodes S16LE frames until the stream ends or the sample limit
// is reached.
func (c *capture) read() {
	defer close(c.done)
	defer c.close()

	reader := bufio.NewReaderSize(c.stream, 32<<10)
	var frame [2]byte
	for {
		if c.maxSamples > 0 && len(c.samples) >= c.maxSamples {
			return
		}
		if _, err := io.ReadFull(reader, frame[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !c.stopping.Load() {
				c.readErr = err
			}
			return
		}
		c.samples = append(c.samples, int(int16(binary.LittleEndian.Uint16(frame[:]))))
	}
}

func (c *capture) close() {
	c.closeOnce.Do(func() {
		c.closeErr = c.stream.Close()
	})
}

// count advances the elapsed counter once per second until the
// capture ends.
func (r *Recorder) count(current *capture) {
	defer current.ticker.Stop()
	for {
		select {
		case <-current.ticker.C:
			r.mu.Lock()
			if r.capture != current {
				r.mu.Unlock()
				return
			}
			r.elapsed += time.Second
			elapsed := r.elapsed
			r.mu.Unlock()
			r.publishTick(elapsed)
		case <-current.done:
			return
		case <-current.stopTicking:
			return
		}
	}
}

func (r *Recorder) publishTick(elapsed time.Duration) {
	for {
		select {
		case r.ticks <- elapsed:
			return
		default:
		}
		select {
		case <-r.ticks:
		default:
		}
	}
}

func (r *Recorder) drainTicks() {
	select {
	case <-r.ticks:
	default:
	}
}

// Stop ends the capture and encodes the clip. On success the recorder
// is in StateStopped and Clip returns the result. A capture that read
// nothing returns ErrEmptyRecording and leaves the recorder idle.
func (r *Recorder) Stop() (*Clip, error) {
	current, err := r.detach()
	if err != nil {
		return nil, err
	}
	current.finish()

	if current.closeErr != nil {
		r.logger.Warn("voice source closed with error", "error", current.closeErr)
	}
	if current.readErr != nil {
		r.logger.Warn("voice capture ended with read error", "error", current.readErr, "samples", len(current.samples))
	}

	if len(current.samples) == 0 {
		r.setIdle()
		if current.readErr != nil {
			return nil, fmt.Errorf("voice: capture failed: %w", current.readErr)
		}
		return nil, ErrEmptyRecording
	}

	clip, err := NewClip(current.samples, r.sampleRate)
	if err != nil {
		r.setIdle()
		return nil, err
	}

	r.mu.Lock()
	r.state = StateStopped
	r.elapsed = 0
	r.clip = clip
	r.mu.Unlock()

	r.logger.Info("voice recording stopped",
		"duration", clip.Duration(),
		"bytes", clip.Size(),
	)
	return clip, nil
}

// Reset discards any capture in progress and any finished clip.
func (r *Recorder) Reset() {
	if current, err := r.detach(); err == nil {
		current.finish()
	}
	r.setIdle()
}

// detach takes ownership of the running capture.
func (r *Recorder) detach() (*capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording || r.capture == nil {
		return nil, ErrNotRecording
	}
	current := r.capture
	r.capture = nil
	return current, nil
}

// finish closes the stream and waits for the reader to exit.
func (c *capture) finish() {
	c.stopping.Store(true)
	close(c.stopTicking)
	c.close()
	<-c.done
}

func (r *Recorder) setIdle() {
	r.mu.Lock()
	r.state = StateIdle
	r.elapsed = 0
	r.clip = nil
	r.mu.Unlock()
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns whole seconds counted since Start. Zero when not
// recording.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Clip returns the finished clip in StateStopped, nil otherwise.
func (r *Recorder) Clip() *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clip
}

// Ticks delivers the elapsed time after each second of recording.
func (r *Recorder) Ticks() <-chan time.Duration { return r.ticks }

// Done returns a channel closed when the current capture's source is
// exhausted or MaxDuration is reached. The recorder stays in
// StateRecording until Stop. When not recording the channel is nil.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return nil
	}
	return r.capture.done
}
