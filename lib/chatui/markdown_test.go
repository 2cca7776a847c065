// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func renderPlain(t *testing.T, body string, width int) []string {
	t.Helper()
	return strings.Split(ansi.Strip(renderMarkdown(body, DefaultTheme, width)), "\n")
}

func TestRenderMarkdownEmpty(t *testing.T) {
	if got := renderMarkdown("  \n", DefaultTheme, 80); got != "" {
		t.Errorf("blank body rendered as %q", got)
	}
}

func TestRenderMarkdownInlineStyles(t *testing.T) {
	rendered := renderMarkdown("**bold**, _italic_ and `code`", DefaultTheme, 80)
	if !strings.Contains(rendered, "\x1b[") {
		t.Error("no ANSI styling in output")
	}
	if got := ansi.Strip(rendered); got != "bold, italic and code" {
		t.Errorf("plain text = %q", got)
	}
}

func TestRenderMarkdownKeepsLineBreaks(t *testing.T) {
	lines := renderPlain(t, "first line\nsecond line", 80)
	if len(lines) != 2 || lines[0] != "first line" || lines[1] != "second line" {
		t.Errorf("lines = %q", lines)
	}
}

func TestRenderMarkdownWraps(t *testing.T) {
	body := strings.Repeat("word ", 40)
	for _, line := range renderPlain(t, body, 30) {
		if ansi.StringWidth(line) > 30 {
			t.Errorf("line %q is %d wide, limit 30", line, ansi.StringWidth(line))
		}
	}
}

func TestRenderMarkdownBlocks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "bullets",
			body: "- one\n- two",
			want: []string{"• one", "• two"},
		},
		{
			name: "ordered",
			body: "3. three\n4. four",
			want: []string{"3. three", "4. four"},
		},
		{
			name: "quote",
			body: "> quoted text",
			want: []string{"│ quoted text"},
		},
		{
			name: "link",
			body: "[docs](https://example.org/docs)",
			want: []string{"docs (https://example.org/docs)"},
		},
		{
			name: "autolink",
			body: "see https://example.org",
			want: []string{"see https://example.org"},
		},
		{
			name: "tasks",
			body: "- [x] done\n- [ ] todo",
			want: []string{"• [x] done", "• [ ] todo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := renderPlain(t, tt.body, 80)
			if strings.Join(lines, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("got %q, want %q", lines, tt.want)
			}
		})
	}
}

func TestRenderMarkdownHighlightsCode(t *testing.T) {
	body := "```go\nfunc main() {}\n```"
	rendered := renderMarkdown(body, DefaultTheme, 80)
	if !strings.Contains(ansi.Strip(rendered), "func main() {}") {
		t.Errorf("code text missing: %q", ansi.Strip(rendered))
	}
	// chroma emits 256-color foreground sequences.
	if !strings.Contains(rendered, "\x1b[38;5;") {
		t.Errorf("code was not highlighted: %q", rendered)
	}
}

func TestRenderMarkdownUnknownLanguage(t *testing.T) {
	body := "```nosuchlanguage\nplain code\n```"
	if got := ansi.Strip(renderMarkdown(body, DefaultTheme, 80)); got != "plain code" {
		t.Errorf("got %q", got)
	}
}
