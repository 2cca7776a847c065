// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
)

// DefaultPlaybackCommand plays through the default ALSA device.
var DefaultPlaybackCommand = []string{"aplay", "-q", "{file}"}

// Player plays clips by writing them to a temporary WAV file and
// running Command. "{file}" in Command is replaced with the file's
// path; if no argument contains it, the path is appended.
type Player struct {
	Command []string
	Logger  *slog.Logger
}

// Playback is one running playback.
type Playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Play starts playing clip and returns without waiting for it to
// finish.
func (p Player) Play(ctx context.Context, clip *Clip) (*Playback, error) {
	if clip == nil {
		return nil, errors.New("voice: no clip to play")
	}
	command := p.Command
	if len(command) == 0 {
		command = DefaultPlaybackCommand
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.CreateTemp("", "roomchat-voice-*.wav")
	if err != nil {
		return nil, fmt.Errorf("voice: creating playback file: %w", err)
	}
	path := file.Name()
	if _, err := file.Write(clip.WAV()); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("voice: writing playback file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("voice: writing playback file: %w", err)
	}

	args := expandArgs(command, map[string]string{"{file}": path})
	if !slices.ContainsFunc(command, func(arg string) bool { return strings.Contains(arg, "{file}") }) {
		args = append(args, path)
	}

	ctx, cancel := context.WithCancel(ctx)
	process := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := process.Start(); err != nil {
		cancel()
		os.Remove(path)
		return nil, fmt.Errorf("voice: starting %s: %w", args[0], err)
	}

	playback := &Playback{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(playback.done)
		defer os.Remove(path)
		err := process.Wait()
		if err != nil && ctx.Err() == nil {
			playback.err = fmt.Errorf("voice: %s: %w", args[0], err)
			logger.Warn("voice playback failed", "command", args[0], "error", err)
		}
		cancel()
	}()
	return playback, nil
}

// Done is closed when playback ends, naturally or by Stop.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Wait blocks until playback ends. Stopped playback is not an error.
func (p *Playback) Wait() error {
	<-p.done
	return p.err
}

// Stop interrupts playback and waits for the player to exit.
func (p *Playback) Stop() {
	p.cancel()
	<-p.done
}
