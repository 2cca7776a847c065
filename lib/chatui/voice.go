// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/roomchat/chat"
	"github.com/bureau-foundation/roomchat/voice"
)

// waveformLevels are the bar glyphs for a clip preview, quietest first.
var waveformLevels = []rune("▁▂▃▄▅▆▇█")

func (model Model) recording() bool {
	return model.config.Recorder != nil && model.config.Recorder.State() == voice.StateRecording
}

func (model Model) toggleRecording() (tea.Model, tea.Cmd) {
	recorder := model.config.Recorder
	if recorder == nil {
		model.chatError = "Voice recording is not configured"
		return model, nil
	}
	if recorder.State() == voice.StateRecording {
		model.stopRecording()
		return model, nil
	}

	model.stopPlayback()
	if err := recorder.Start(model.ctx); err != nil {
		model.chatError = err.Error()
		return model, nil
	}
	model.clip = nil
	model.elapsed = 0
	model.chatError = ""
	return model, waitForRecorder(recorder)
}

// waitForRecorder delivers the next elapsed-time tick, or the end of
// the capture.
func waitForRecorder(recorder *voice.Recorder) tea.Cmd {
	done := recorder.Done()
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case elapsed := <-recorder.Ticks():
			return recorderTickMsg{elapsed: elapsed}
		case <-done:
			return recorderDoneMsg{done: done}
		}
	}
}

func (model *Model) stopRecording() {
	clip, err := model.config.Recorder.Stop()
	model.elapsed = 0
	if err != nil {
		if errors.Is(err, voice.ErrEmptyRecording) {
			model.chatError = "Nothing was recorded"
		} else {
			model.chatError = err.Error()
		}
		model.clip = nil
		return
	}
	model.clip = clip
}

func (model *Model) discardClip() {
	model.stopPlayback()
	if model.config.Recorder != nil {
		model.config.Recorder.Reset()
	}
	model.clip = nil
	model.elapsed = 0
}

func (model *Model) stopPlayback() {
	if model.playback != nil {
		model.playback.Stop()
		model.playback = nil
	}
}

func (model Model) togglePlayback() (tea.Model, tea.Cmd) {
	if model.playback != nil {
		model.stopPlayback()
		return model, nil
	}
	if model.config.Player == nil {
		model.chatError = "Voice playback is not configured"
		return model, nil
	}
	playback, err := model.config.Player.Play(model.ctx, model.clip)
	if err != nil {
		model.chatError = err.Error()
		return model, nil
	}
	model.playback = playback
	return model, func() tea.Msg {
		return playbackDoneMsg{playback: playback, err: playback.Wait()}
	}
}

func (model Model) sendClip() (tea.Model, tea.Cmd) {
	if model.sendingClip || model.view == nil {
		return model, nil
	}
	model.stopPlayback()
	model.sendingClip = true
	clip := chat.AudioClip{
		Data:     model.clip.WAV(),
		MimeType: voice.MimeType,
		Duration: model.clip.Duration(),
	}
	backend := model.config.Backend
	roomID := model.view.RoomID()
	ctx := model.ctx
	return model, func() tea.Msg {
		_, err := backend.SendVoiceMessage(ctx, roomID, clip)
		return voiceSentMsg{err: err}
	}
}

func (model Model) handleVoiceSent(message voiceSentMsg) (tea.Model, tea.Cmd) {
	model.sendingClip = false
	if message.err != nil {
		model.chatError = message.err.Error()
		return model, nil
	}
	model.chatError = ""
	model.discardClip()
	return model, nil
}

// voiceLine renders the recorder state: a live counter while
// recording, or the clip's length and waveform once stopped.
func (model Model) voiceLine(width int) string {
	accent := lipgloss.NewStyle().Foreground(model.theme.RecordingAccent).Bold(true)
	if model.recording() {
		return accent.Render("● REC ") + voice.FormatTime(model.elapsed)
	}
	if model.clip == nil {
		return ""
	}

	label := fmt.Sprintf("♪ %s ", voice.FormatTime(model.clip.Duration()))
	switch {
	case model.sendingClip:
		label += "sending… "
	case model.playback != nil:
		label += "playing… "
	}
	bars := max(width-len([]rune(label))-1, 0)
	return label + lipgloss.NewStyle().Foreground(model.theme.WaveformBar).Render(waveform(model.clip, min(bars, 60)))
}

func waveform(clip *voice.Clip, width int) string {
	peaks := clip.Waveform(width)
	var builder strings.Builder
	for _, peak := range peaks {
		index := int(peak * float64(len(waveformLevels)-1))
		builder.WriteRune(waveformLevels[index])
	}
	return builder.String()
}
