// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/cmd/roomchat/cli"
	"github.com/bureau-foundation/roomchat/lib/config"
	"github.com/bureau-foundation/roomchat/voice"
)

func voiceCommand() *cli.Command {
	return &cli.Command{
		Name:    "voice",
		Summary: "Record, play, and send voice messages",
		Description: `Record, play, and send voice messages outside the chat screen.

Recording runs voice.capture_command, which must write signed 16-bit
little-endian mono PCM to stdout; playback runs voice.playback_command
on a temporary WAV file. The defaults use ALSA's arecord and aplay.`,
		Subcommands: []*cli.Command{
			voiceRecordCommand(),
			voicePlayCommand(),
			voiceSendCommand(),
		},
	}
}

type voiceRecordParams struct {
	cli.ConnectionFlags
	Duration time.Duration `json:"duration" flag:"duration,d" desc:"stop after this long (default: until interrupted, at most voice.max_duration)"`
}

func voiceRecordCommand() *cli.Command {
	var params voiceRecordParams
	return &cli.Command{
		Name:    "record",
		Summary: "Record a clip to a WAV file",
		Usage:   "roomchat voice record [flags] <output.wav>",
		Examples: []cli.Example{
			{Description: "Record until Ctrl+C", Command: "roomchat voice record note.wav"},
			{Description: "Record ten seconds", Command: "roomchat voice record -d 10s note.wav"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one output file is required\n\nUsage: roomchat voice record [flags] <output.wav>")
			}
			if params.Duration < 0 {
				return cli.Validation("--duration must not be negative")
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}

			clip, err := recordClip(ctx, cfg, params.Duration, logger)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], clip.WAV(), 0o644); err != nil {
				return cli.Internal("writing %s: %w", args[0], err)
			}
			fmt.Fprintf(os.Stderr, "Recorded %s to %s\n", voice.FormatTime(clip.Duration()), args[0])
			return nil
		},
	}
}

// recordClip captures from the configured command until ctx is
// canceled, the duration passes, or the capture ends on its own.
func recordClip(ctx context.Context, cfg *config.Config, duration time.Duration, logger *slog.Logger) (*voice.Clip, error) {
	maxDuration := cfg.Voice.MaxDuration.Std()
	if duration > 0 && (maxDuration == 0 || duration < maxDuration) {
		maxDuration = duration
	}
	recorder, err := voice.NewRecorder(voice.RecorderConfig{
		Source: voice.CommandSource{
			Command:    cfg.Voice.CaptureCommand,
			SampleRate: cfg.Voice.SampleRate,
		},
		SampleRate:  cfg.Voice.SampleRate,
		MaxDuration: maxDuration,
		Logger:      logger,
	})
	if err != nil {
		return nil, cli.Internal("%w", err)
	}

	// The capture outlives ctx: an interrupt ends the recording and
	// keeps what was captured.
	captureContext, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	if err := recorder.Start(captureContext); err != nil {
		return nil, cli.Internal("starting capture: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Recording… press Ctrl+C to stop.")

	done := recorder.Done()
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			waiting = false
		case <-done:
			waiting = false
		case elapsed := <-recorder.Ticks():
			fmt.Fprintf(os.Stderr, "\r%s", voice.FormatTime(elapsed))
		}
	}
	fmt.Fprintln(os.Stderr)

	clip, err := recorder.Stop()
	if errors.Is(err, voice.ErrEmptyRecording) {
		return nil, cli.Validation("nothing was recorded (check voice.capture_command)")
	}
	if err != nil {
		return nil, cli.Internal("stopping capture: %w", err)
	}
	return clip, nil
}

type voicePlayParams struct {
	cli.ConnectionFlags
}

func voicePlayCommand() *cli.Command {
	var params voicePlayParams
	return &cli.Command{
		Name:    "play",
		Summary: "Play a WAV clip",
		Usage:   "roomchat voice play [flags] <clip.wav>",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one clip is required\n\nUsage: roomchat voice play [flags] <clip.wav>")
			}
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			clip, err := readClip(args[0])
			if err != nil {
				return err
			}

			player := voice.Player{Command: cfg.Voice.PlaybackCommand, Logger: logger}
			playback, err := player.Play(ctx, clip)
			if err != nil {
				return cli.Internal("%w", err)
			}
			if err := playback.Wait(); err != nil && ctx.Err() == nil {
				return cli.Internal("playback: %w", err)
			}
			return nil
		},
	}
}

type voiceSendParams struct {
	cli.ConnectionFlags
	cli.JSONOutput
	Room string `json:"room" flag:"room" desc:"room ID (default: the configured default_room)"`
}

func voiceSendCommand() *cli.Command {
	var params voiceSendParams
	return &cli.Command{
		Name:    "send",
		Summary: "Send a WAV clip as a voice message",
		Description: `Upload a WAV clip and send it to the room as a voice message. With
"-" instead of a file, record a new clip first (until Ctrl+C).`,
		Usage: "roomchat voice send [flags] <clip.wav|->",
		Examples: []cli.Example{
			{Description: "Send a recorded clip", Command: "roomchat voice send note.wav"},
			{Description: "Record and send in one step", Command: "roomchat voice send -"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one clip is required\n\nUsage: roomchat voice send [flags] <clip.wav|->")
			}

			environment, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer environment.Close()
			roomID, err := environment.Room(params.Room)
			if err != nil {
				return err
			}

			var clip *voice.Clip
			if args[0] == "-" {
				clip, err = recordClip(ctx, environment.Config, 0, logger)
				// The interrupt that ended the recording must not
				// cancel the send.
				ctx = context.WithoutCancel(ctx)
			} else {
				clip, err = readClip(args[0])
			}
			if err != nil {
				return err
			}

			eventID, err := environment.Service.SendVoiceMessage(ctx, roomID, chat.AudioClip{
				Data:     clip.WAV(),
				MimeType: voice.MimeType,
				Duration: clip.Duration(),
			})
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(map[string]string{"event_id": eventID.String(), "room_id": roomID.String()}); done {
				return err
			}
			return printEventID(eventID)
		},
	}
}

func readClip(path string) (*voice.Clip, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cli.NotFound("clip %s does not exist", path)
	}
	if err != nil {
		return nil, cli.Internal("reading %s: %w", path, err)
	}
	clip, err := voice.DecodeClip(data)
	if err != nil {
		return nil, cli.Validation("%s: %w", path, err)
	}
	return clip, nil
}
