package blocks

import (
	"context"
	"strings"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

var structureKinds = map[string]bool{
	"divider":           true,
	"table":             true,
	"table_row":         true,
	"column_list":       true,
	"column":            true,
	"equation":          true,
	"synced_block":      true,
	"template":          true,
	"child_page":        true,
	"breadcrumb":        true,
	"table_of_contents": true,
	"link_to_page":      true,
}

// StructureProcessor handles layout blocks. Most pass through unchanged;
// table rows contribute their cell text so tables remain searchable.
type StructureProcessor struct{}

// NewStructureProcessor builds a StructureProcessor.
func NewStructureProcessor() *StructureProcessor {
	return &StructureProcessor{}
}

// Name implements Processor.
func (p *StructureProcessor) Name() string { return "structure" }

// Matches implements Processor.
func (p *StructureProcessor) Matches(kind string) bool { return structureKinds[kind] }

// Process implements Processor.
func (p *StructureProcessor) Process(_ context.Context, block *ingest.Block, _ string) (Outcome, error) {
	if block.Kind != "table_row" {
		return Outcome{}, nil
	}
	var cells []string
	for _, cell := range block.Cells {
		if text := plainText(cell); text != "" {
			cells = append(cells, text)
		}
	}
	return Outcome{Text: strings.Join(cells, " ")}, nil
}
