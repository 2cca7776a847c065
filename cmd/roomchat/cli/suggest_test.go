// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"send", "send", 0},
		{"send", "sned", 2},
		{"histroy", "history", 2},
		{"room", "rooms", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := levenshtein(tt.b, tt.a); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{{Name: "chat"}, {Name: "history"}, {Name: "watch"}}
	tests := []struct {
		input string
		want  string
	}{
		{"chta", "chat"},
		{"hisotry", "history"},
		{"wach", "watch"},
		{"completely-different", ""},
	}
	for _, tt := range tests {
		if got := suggestCommand(tt.input, commands); got != tt.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("room", "", "")
		flagSet.IntP("limit", "n", 0, "")
		flagSet.String("format", "", "")
		return flagSet
	}
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "typo", args: []string{"--rooom", "x"}, want: "--room"},
		{name: "with value", args: []string{"--fromat=json"}, want: "--format"},
		{name: "known flags skipped", args: []string{"--room", "x", "--limt", "3"}, want: "--limit"},
		{name: "shorthand known", args: []string{"-n", "3", "--formt", "text"}, want: "--format"},
		{name: "nothing close", args: []string{"--verbose-output"}, want: ""},
		{name: "after terminator", args: []string{"--", "--rooom"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestFlag(tt.args, newFlags()); got != tt.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
