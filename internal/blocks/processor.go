// Package blocks transforms raw content blocks into render-ready form:
// images are materialized, headings get anchors, and each page yields its
// raw text, table of contents and thumbnail.
package blocks

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
	"github.com/jaehyun-p/notion-ingest/internal/metrics"
)

// Outcome is what processing a single block yields.
type Outcome struct {
	// Text is the block's plain-text contribution to the page raw text.
	Text string
	// TOC holds table-of-contents entries emitted by heading blocks.
	TOC []ingest.TOCEntry
	// ImageRef is the materialized asset reference for image blocks.
	ImageRef string
}

// Processor handles one family of block kinds. Process may mutate the block
// in place (anchors, asset references).
type Processor interface {
	Name() string
	Matches(kind string) bool
	Process(ctx context.Context, block *ingest.Block, parentID string) (Outcome, error)
}

// Registry dispatches blocks to processors in registration order; the first
// processor whose Matches returns true wins.
type Registry struct {
	procs []Processor
	log   *zap.Logger
}

// NewRegistry builds a Registry over the given processors.
func NewRegistry(log *zap.Logger, procs ...Processor) *Registry {
	return &Registry{procs: procs, log: log}
}

// NewDefaultRegistry wires the standard processor set.
func NewDefaultRegistry(assets ingest.AssetStore, log *zap.Logger) *Registry {
	return NewRegistry(log,
		NewTextProcessor(),
		NewImageProcessor(assets, log),
		NewMediaProcessor(),
		NewStructureProcessor(),
	)
}

// Process runs the first matching processor on block. Unmatched kinds pass
// through untouched with a warning.
func (r *Registry) Process(ctx context.Context, block *ingest.Block, parentID string) (Outcome, error) {
	for _, p := range r.procs {
		if p.Matches(block.Kind) {
			metrics.ObserveBlock(block.Kind)
			return p.Process(ctx, block, parentID)
		}
	}
	r.log.Warn("no processor for block kind",
		zap.String("kind", block.Kind),
		zap.String("block_id", block.ID),
	)
	metrics.ObserveBlock("unhandled")
	return Outcome{}, nil
}

// PageContent is the aggregate result of processing a page's block tree.
type PageContent struct {
	Blocks       []ingest.Block
	RawText      string
	TOC          []ingest.TOCEntry
	ThumbnailRef string
}

// ProcessPage walks the block tree depth-first in document order and
// aggregates the per-block outcomes. The thumbnail is the first image in
// document order. A processor failure downgrades to a warning and leaves
// the block unprocessed.
func (r *Registry) ProcessPage(ctx context.Context, pageID string, blks []ingest.Block) PageContent {
	content := PageContent{Blocks: blks}
	var texts []string
	r.walk(ctx, pageID, content.Blocks, &texts, &content.TOC, &content.ThumbnailRef)
	content.RawText = strings.Join(texts, "\n")
	return content
}

func (r *Registry) walk(ctx context.Context, pageID string, blks []ingest.Block, texts *[]string, toc *[]ingest.TOCEntry, thumbnail *string) {
	for i := range blks {
		out, err := r.Process(ctx, &blks[i], pageID)
		if err != nil {
			r.log.Warn("block processing failed",
				zap.String("page_id", pageID),
				zap.String("block_id", blks[i].ID),
				zap.String("kind", blks[i].Kind),
				zap.Error(err),
			)
		} else {
			if out.Text != "" {
				*texts = append(*texts, out.Text)
			}
			*toc = append(*toc, out.TOC...)
			if *thumbnail == "" && out.ImageRef != "" {
				*thumbnail = out.ImageRef
			}
		}
		if len(blks[i].Children) > 0 {
			r.walk(ctx, pageID, blks[i].Children, texts, toc, thumbnail)
		}
	}
}

// plainText joins the plain-text spans of rich text.
func plainText(spans []ingest.RichText) string {
	var b strings.Builder
	for _, span := range spans {
		b.WriteString(span.PlainText)
	}
	return b.String()
}
