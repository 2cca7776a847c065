// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
	markdownStyles *lipgloss.Renderer
)

func initMarkdown() {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
			extension.TaskList,
		))
		// Message bodies always render into the TUI, so the profile is
		// pinned instead of detected from a writer that may not be a
		// terminal.
		markdownStyles = lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
		markdownStyles.SetColorProfile(termenv.ANSI256)
	})
}

// renderMarkdown renders a message body for the terminal, wrapped to
// width. Soft line breaks are kept as line breaks: chat users press
// Shift+Enter on purpose. Fenced code is highlighted by chroma.
func renderMarkdown(body string, theme Theme, width int) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	initMarkdown()
	source := []byte(body)
	document := markdownParser.Parser().Parse(text.NewReader(source))

	renderer := &bodyRenderer{source: source, theme: theme, width: max(width, 10)}
	renderer.blocks(document, "")
	return strings.TrimRight(strings.Join(renderer.lines, "\n"), "\n")
}

// bodyRenderer turns a goldmark document into terminal lines. Blocks
// are rendered recursively with the prefix of their container
// (quote bars, list indentation); inline content is styled into a
// string and wrapped when its block closes.
type bodyRenderer struct {
	source []byte
	theme  Theme
	width  int
	lines  []string
}

func (renderer *bodyRenderer) style() lipgloss.Style {
	return markdownStyles.NewStyle()
}

func (renderer *bodyRenderer) blankLine() {
	if len(renderer.lines) > 0 && renderer.lines[len(renderer.lines)-1] != "" {
		renderer.lines = append(renderer.lines, "")
	}
}

// emit wraps content to the width left after prefix. The first line
// gets firstPrefix; continuation lines get prefix.
func (renderer *bodyRenderer) emit(content, firstPrefix, prefix string) {
	available := max(renderer.width-ansi.StringWidth(prefix), 10)
	wrapped := ansi.Wrap(content, available, " ,.;-/")
	for index, line := range strings.Split(wrapped, "\n") {
		if index == 0 {
			renderer.lines = append(renderer.lines, firstPrefix+line)
		} else {
			renderer.lines = append(renderer.lines, prefix+line)
		}
	}
}

func (renderer *bodyRenderer) blocks(parent ast.Node, prefix string) {
	for node := parent.FirstChild(); node != nil; node = node.NextSibling() {
		renderer.block(node, prefix, prefix)
	}
}

func (renderer *bodyRenderer) block(node ast.Node, firstPrefix, prefix string) {
	switch node := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		renderer.emit(renderer.inline(node, renderer.style().Foreground(renderer.theme.NormalText)), firstPrefix, prefix)
		if _, tight := node.(*ast.TextBlock); !tight && node.NextSibling() != nil {
			renderer.blankLine()
		}

	case *ast.Heading:
		style := renderer.style().Bold(true).Foreground(renderer.theme.HeaderForeground)
		renderer.emit(style.Render(ansi.Strip(renderer.inline(node, renderer.style()))), firstPrefix, prefix)

	case *ast.FencedCodeBlock:
		language := string(node.Language(renderer.source))
		renderer.code(renderer.rawLines(node), language, firstPrefix, prefix)

	case *ast.CodeBlock:
		renderer.code(renderer.rawLines(node), "", firstPrefix, prefix)

	case *ast.Blockquote:
		bar := renderer.style().Foreground(renderer.theme.QuoteBar).Render("│") + " "
		renderer.blocks(node, prefix+bar)

	case *ast.List:
		number := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			bullet := "• "
			if node.IsOrdered() {
				bullet = fmt.Sprintf("%d. ", number)
				number++
			}
			indent := strings.Repeat(" ", len([]rune(bullet)))
			first := true
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if first {
					renderer.block(child, prefix+bullet, prefix+indent)
					first = false
				} else {
					renderer.block(child, prefix+indent, prefix+indent)
				}
			}
		}

	case *ast.ThematicBreak:
		rule := strings.Repeat("─", max(renderer.width-ansi.StringWidth(prefix), 3))
		renderer.lines = append(renderer.lines, firstPrefix+renderer.style().Foreground(renderer.theme.BorderColor).Render(rule))

	case *ast.HTMLBlock:
		raw := strings.TrimSpace(strings.Join(renderer.rawLines(node), ""))
		renderer.emit(renderer.style().Foreground(renderer.theme.FaintText).Render(raw), firstPrefix, prefix)

	default:
		if node.Type() == ast.TypeBlock {
			renderer.blocks(node, prefix)
		}
	}
}

func (renderer *bodyRenderer) rawLines(node ast.Node) []string {
	segments := node.Lines()
	lines := make([]string, 0, segments.Len())
	for index := 0; index < segments.Len(); index++ {
		segment := segments.At(index)
		lines = append(lines, string(segment.Value(renderer.source)))
	}
	return lines
}

// code renders a code block unwrapped, highlighted when the language
// is known to chroma.
func (renderer *bodyRenderer) code(lines []string, language, firstPrefix, prefix string) {
	code := strings.Join(lines, "")
	rendered := renderer.style().Foreground(renderer.theme.FaintText).Render(strings.TrimRight(code, "\n"))
	if language != "" {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, code, language, "terminal256", "monokai"); err == nil {
			rendered = highlighted.String()
		}
	}
	for index, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
		if index == 0 {
			renderer.lines = append(renderer.lines, firstPrefix+line)
		} else {
			renderer.lines = append(renderer.lines, prefix+line)
		}
	}
	renderer.blankLine()
}

// inline renders the inline children of node in base style.
func (renderer *bodyRenderer) inline(node ast.Node, base lipgloss.Style) string {
	var builder strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		renderer.span(&builder, child, base)
	}
	return builder.String()
}

func (renderer *bodyRenderer) span(builder *strings.Builder, node ast.Node, style lipgloss.Style) {
	switch node := node.(type) {
	case *ast.Text:
		builder.WriteString(style.Render(string(node.Segment.Value(renderer.source))))
		if node.HardLineBreak() || node.SoftLineBreak() {
			builder.WriteString("\n")
		}

	case *ast.String:
		builder.WriteString(style.Render(string(node.Value)))

	case *ast.Emphasis:
		if node.Level >= 2 {
			builder.WriteString(renderer.inline(node, style.Bold(true)))
		} else {
			builder.WriteString(renderer.inline(node, style.Italic(true)))
		}

	case *extast.Strikethrough:
		builder.WriteString(renderer.inline(node, style.Strikethrough(true)))

	case *ast.CodeSpan:
		var code strings.Builder
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			if textNode, ok := child.(*ast.Text); ok {
				code.Write(textNode.Segment.Value(renderer.source))
			}
		}
		builder.WriteString(renderer.style().Foreground(renderer.theme.FaintText).Render(code.String()))

	case *ast.Link:
		label := renderer.inline(node, style.Underline(true).Foreground(renderer.theme.LinkForeground))
		builder.WriteString(label)
		destination := string(node.Destination)
		if destination != "" && ansi.Strip(label) != destination {
			builder.WriteString(renderer.style().Foreground(renderer.theme.FaintText).Render(" (" + destination + ")"))
		}

	case *ast.AutoLink:
		builder.WriteString(renderer.style().Underline(true).Foreground(renderer.theme.LinkForeground).Render(string(node.URL(renderer.source))))

	case *ast.Image:
		alt := ansi.Strip(renderer.inline(node, renderer.style()))
		builder.WriteString(renderer.style().Foreground(renderer.theme.FaintText).Render(fmt.Sprintf("[image: %s] (%s)", alt, node.Destination)))

	case *extast.TaskCheckBox:
		if node.IsChecked {
			builder.WriteString(style.Render("[x] "))
		} else {
			builder.WriteString(style.Render("[ ] "))
		}

	case *ast.RawHTML:
		for index := 0; index < node.Segments.Len(); index++ {
			segment := node.Segments.At(index)
			builder.WriteString(renderer.style().Foreground(renderer.theme.FaintText).Render(string(segment.Value(renderer.source))))
		}

	default:
		builder.WriteString(renderer.inline(node, style))
	}
}
