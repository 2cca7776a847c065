// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "roomchat",
		Subcommands: []*Command{
			{
				Name: "send",
				Run: func(context.Context, []string, *slog.Logger) error {
					called = "send"
					return nil
				},
			},
			{
				Name: "history",
				Run: func(context.Context, []string, *slog.Logger) error {
					called = "history"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"history"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "history" {
		t.Errorf("dispatched to %q, want %q", called, "history")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "roomchat",
		Subcommands: []*Command{
			{
				Name: "voice",
				Subcommands: []*Command{
					{
						Name: "send",
						Run: func(_ context.Context, args []string, _ *slog.Logger) error {
							called = "voice send"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"voice", "send", "clip.wav"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "voice send" {
		t.Errorf("dispatched to %q, want %q", called, "voice send")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "clip.wav" {
		t.Errorf("args = %v, want [clip.wav]", receivedArgs)
	}
}

func TestCommand_Execute_ParamsPopulated(t *testing.T) {
	var params struct {
		Room  string `flag:"room"`
		Limit int    `flag:"limit,n" default:"50"`
	}
	var receivedArgs []string

	command := &Command{
		Name:   "history",
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"--room", "!a:example.org", "-n", "5", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Room != "!a:example.org" || params.Limit != 5 {
		t.Errorf("params = %+v", params)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_FlagsFunc(t *testing.T) {
	var verbose bool
	command := &Command{
		Name: "watch",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.BoolVar(&verbose, "verbose", false, "")
			return flagSet
		},
		Run: func(context.Context, []string, *slog.Logger) error { return nil },
	}
	if err := command.Execute([]string{"--verbose"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !verbose {
		t.Error("--verbose was not parsed")
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")
	var got any
	root := &Command{
		Name: "roomchat",
		Subcommands: []*Command{{
			Name: "watch",
			Run: func(ctx context.Context, _ []string, _ *slog.Logger) error {
				got = ctx.Value(key{})
				return nil
			},
		}},
	}
	if err := root.ExecuteContext(ctx, []string{"watch"}); err != nil {
		t.Fatalf("ExecuteContext() error: %v", err)
	}
	if got != "marker" {
		t.Errorf("context value = %v, want marker", got)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "roomchat",
		Subcommands: []*Command{
			{Name: "history", Run: func(context.Context, []string, *slog.Logger) error { return nil }},
			{Name: "rooms", Run: func(context.Context, []string, *slog.Logger) error { return nil }},
		},
	}

	err := root.Execute([]string{"histroy"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "history"`) {
		t.Errorf("error = %q, want suggestion for history", err)
	}
	var toolError *ToolError
	if !errors.As(err, &toolError) || toolError.Category != CategoryValidation {
		t.Errorf("error category: got %v, want validation", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	var params struct {
		Room string `flag:"room"`
	}
	command := &Command{
		Name:   "send",
		Params: func() any { return &params },
		Run:    func(context.Context, []string, *slog.Logger) error { return nil },
	}

	err := command.Execute([]string{"--rom", "x"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --room?") {
		t.Errorf("error = %q, want suggestion for --room", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "roomchat",
		Subcommands: []*Command{{Name: "rooms", Run: func(context.Context, []string, *slog.Logger) error { return nil }}},
	}
	err := root.Execute(nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute(nil) = %v, want subcommand required", err)
	}
}

func TestCommand_Execute_HelpIsNotAnError(t *testing.T) {
	called := false
	command := &Command{
		Name: "rooms",
		Run: func(context.Context, []string, *slog.Logger) error {
			called = true
			return nil
		},
	}
	for _, arg := range []string{"-h", "--help", "help"} {
		if err := command.Execute([]string{arg}); err != nil {
			t.Errorf("Execute(%q) error: %v", arg, err)
		}
	}
	if called {
		t.Error("Run was called for a help request")
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	var params struct {
		Room string `flag:"room" desc:"room ID"`
	}
	root := &Command{Name: "roomchat"}
	command := &Command{
		Name:        "send",
		Summary:     "Send a text message",
		Description: "Send a text message to the room.",
		Usage:       "roomchat send [flags] <text>",
		Examples:    []Example{{Description: "Say hello", Command: "roomchat send hello"}},
		Params:      func() any { return &params },
		parent:      root,
	}
	root.Subcommands = []*Command{command}

	var output bytes.Buffer
	command.PrintHelp(&output)
	for _, want := range []string{
		"Send a text message to the room.",
		"Usage:\n  roomchat send [flags] <text>",
		"--room",
		"room ID",
		"# Say hello",
		"roomchat send hello",
	} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, output.String())
		}
	}

	output.Reset()
	root.PrintHelp(&output)
	if !strings.Contains(output.String(), "Send a text message") ||
		!strings.Contains(output.String(), "Run 'roomchat <command> --help'") {
		t.Errorf("root help output:\n%s", output.String())
	}
}

func TestCommand_CommandPath(t *testing.T) {
	root := &Command{Name: "roomchat"}
	voice := &Command{Name: "voice", parent: root}
	send := &Command{Name: "send", parent: voice}
	if got := send.commandPath(); got != "voice/send" {
		t.Errorf("commandPath() = %q, want voice/send", got)
	}
	if got := send.fullName(); got != "roomchat voice send" {
		t.Errorf("fullName() = %q, want %q", got, "roomchat voice send")
	}
}
