// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Source produces a raw PCM stream: signed 16-bit little-endian,
// mono, at the recorder's sample rate. Closing the stream ends the
// capture.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CommandSource captures audio by running an external recorder that
// writes raw PCM to stdout. Arguments may contain "{rate}", replaced
// with SampleRate:
//
//	voice.CommandSource{
//		Command:    []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"},
//		SampleRate: 16000,
//	}
type CommandSource struct {
	Command    []string
	SampleRate int
}

// DefaultCaptureCommand records from the default ALSA device.
var DefaultCaptureCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"}

// Open starts the capture process. Closing the returned stream stops
// the process and waits for it.
func (s CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(s.Command) == 0 {
		return nil, errors.New("voice: capture command is empty")
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	args := expandArgs(s.Command, map[string]string{"{rate}": strconv.Itoa(rate)})

	ctx, cancel := context.WithCancel(ctx)
	command := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("voice: capture stdout: %w", err)
	}
	var stderr strings.Builder
	command.Stderr = &limitedWriter{builder: &stderr, limit: 4096}
	if err := command.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("voice: starting %s: %w", args[0], err)
	}
	return &commandStream{ReadCloser: stdout, command: command, cancel: cancel, stderr: &stderr}, nil
}

type commandStream struct {
	io.ReadCloser
	command *exec.Cmd
	cancel  context.CancelFunc
	stderr  *strings.Builder

	once sync.Once
	err  error
}

// Close stops the capture process. A process killed by Close is not
// an error; one that failed on its own reports its stderr.
func (s *commandStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		waitErr := s.command.Wait()
		var exitErr *exec.ExitError
		if errors.Is(waitErr, context.Canceled) || (errors.As(waitErr, &exitErr) && !exitErr.Exited()) {
			// Terminated by our signal.
			return
		}
		if waitErr != nil {
			s.err = fmt.Errorf("voice: %s: %w: %s", s.command.Path, waitErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.err
}

type limitedWriter struct {
	builder *strings.Builder
	limit   int
}

func (w *limitedWriter) Write(data []byte) (int, error) {
	remaining := w.limit - w.builder.Len()
	if remaining > 0 {
		if len(data) > remaining {
			w.builder.Write(data[:remaining])
		} else {
			w.builder.Write(data)
		}
	}
	return len(data), nil
}

// ReaderSource serves a PCM stream that already exists, such as a
// file or a test fixture. It can be opened once.
type ReaderSource struct {
	Reader io.Reader

	mu     sync.Mutex
	opened bool
}

// Open returns the reader. A second Open fails.
func (s *ReaderSource) Open(context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, errors.New("voice: reader source already consumed")
	}
	s.opened = true
	if closer, ok := s.Reader.(io.ReadCloser); ok {
		return closer, nil
	}
	return io.NopCloser(s.Reader), nil
}

func expandArgs(args []string, replacements map[string]string) []string {
	expanded := make([]string, len(args))
	for index, arg := range args {
		for placeholder, value := range replacements {
			arg = strings.ReplaceAll(arg, placeholder, value)
		}
		expanded[index] = arg
	}
	return expanded
}
