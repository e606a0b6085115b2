package blocks

import (
	"context"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

var mediaKinds = map[string]bool{
	"bookmark":     true,
	"embed":        true,
	"video":        true,
	"audio":        true,
	"pdf":          true,
	"file":         true,
	"link_preview": true,
}

// MediaProcessor handles embedded media blocks. The block payload already
// carries everything the renderer needs; only the caption feeds raw text.
type MediaProcessor struct{}

// NewMediaProcessor builds a MediaProcessor.
func NewMediaProcessor() *MediaProcessor {
	return &MediaProcessor{}
}

// Name implements Processor.
func (p *MediaProcessor) Name() string { return "media" }

// Matches implements Processor.
func (p *MediaProcessor) Matches(kind string) bool { return mediaKinds[kind] }

// Process implements Processor.
func (p *MediaProcessor) Process(_ context.Context, block *ingest.Block, _ string) (Outcome, error) {
	return Outcome{Text: plainText(block.Caption)}, nil
}
