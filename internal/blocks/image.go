package blocks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// ImageProcessor materializes image blocks into stable assets. The remote
// source URLs are signed and expire, so every image must be downloaded and
// re-hosted before the page can be rendered.
type ImageProcessor struct {
	assets ingest.AssetStore
	log    *zap.Logger
}

// NewImageProcessor builds an ImageProcessor.
func NewImageProcessor(assets ingest.AssetStore, log *zap.Logger) *ImageProcessor {
	return &ImageProcessor{assets: assets, log: log}
}

// Name implements Processor.
func (p *ImageProcessor) Name() string { return "image" }

// Matches implements Processor.
func (p *ImageProcessor) Matches(kind string) bool { return kind == "image" }

// Process implements Processor.
func (p *ImageProcessor) Process(ctx context.Context, block *ingest.Block, parentID string) (Outcome, error) {
	if block.Image == nil || block.Image.SourceURL == "" {
		return Outcome{}, fmt.Errorf("image block %s has no source url", block.ID)
	}
	assetRef, err := p.assets.Materialize(ctx, block.Image.SourceURL, parentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("materialize image %s: %w", block.ID, err)
	}
	block.Image.AssetID = assetRef
	return Outcome{
		Text:     plainText(block.Image.Caption),
		ImageRef: assetRef,
	}, nil
}
