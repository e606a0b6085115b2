package blocks

import (
	"context"
	"regexp"
	"strings"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// textKinds are the rich-text bearing block kinds handled here.
var textKinds = map[string]bool{
	"paragraph":          true,
	"heading_1":          true,
	"heading_2":          true,
	"heading_3":          true,
	"bulleted_list_item": true,
	"numbered_list_item": true,
	"quote":              true,
	"callout":            true,
	"toggle":             true,
	"to_do":              true,
	"code":               true,
}

var headingLevels = map[string]int{
	"heading_1": 1,
	"heading_2": 2,
	"heading_3": 3,
}

// anchorStripRE removes everything but word characters, Hangul, whitespace,
// hyphens and underscores before an anchor is built.
var anchorStripRE = regexp.MustCompile(`[^a-zA-Z0-9가-힣\s\-_]`)

var anchorSpaceRE = regexp.MustCompile(`\s+`)

// TextProcessor handles paragraph-like blocks and headings. Headings are
// assigned stable anchors and emitted as table-of-contents entries.
type TextProcessor struct{}

// NewTextProcessor builds a TextProcessor.
func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

// Name implements Processor.
func (p *TextProcessor) Name() string { return "text" }

// Matches implements Processor.
func (p *TextProcessor) Matches(kind string) bool { return textKinds[kind] }

// Process implements Processor.
func (p *TextProcessor) Process(_ context.Context, block *ingest.Block, _ string) (Outcome, error) {
	text := plainText(block.RichText)
	if block.Kind == "code" {
		// Code blocks carry escaped newlines in their plain text.
		text = strings.ReplaceAll(text, `\n`, "\n")
	}

	out := Outcome{Text: text}
	if level, ok := headingLevels[block.Kind]; ok && text != "" {
		block.Anchor = HeadingAnchor(text)
		out.TOC = []ingest.TOCEntry{{
			Level:  level,
			Anchor: block.Anchor,
			Title:  text,
		}}
	}
	return out, nil
}

// HeadingAnchor derives the in-page hash fragment for a heading title.
func HeadingAnchor(title string) string {
	cleaned := anchorStripRE.ReplaceAllString(title, "")
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	return "link-" + anchorSpaceRE.ReplaceAllString(cleaned, "-")
}
