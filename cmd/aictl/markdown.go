package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// markdownRenderer renders model output as styled markdown on TTYs.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer() (*markdownRenderer, error) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width - 4
		if termWidth > 120 {
			termWidth = 120
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(termWidth),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, err
	}
	return &markdownRenderer{renderer: renderer}, nil
}

// Render returns styled output, or the input unchanged when rendering is
// not possible.
func (mr *markdownRenderer) Render(content string) string {
	if mr == nil || mr.renderer == nil || content == "" {
		return content
	}
	rendered, err := mr.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// looksLikeMarkdown applies cheap heuristics so plain answers stay plain.
func looksLikeMarkdown(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	indicators := []string{"# ", "## ", "### ", "```", "- ", "* ", "1. ", "]("}
	for _, indicator := range indicators {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return strings.Count(content, "**") >= 2 || strings.Count(content, "`") >= 2
}
