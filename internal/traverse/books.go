package traverse

import (
	"context"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// ingestBooks materializes the flat book database: one Book node per row.
// Category relations resolve to category node IDs even though the category
// nodes themselves are created later in traversal; the IDs are
// deterministic so the forward reference holds.
func (e *Engine) ingestBooks(ctx context.Context, s *session) {
	rows, err := e.deps.Service.QueryDatabase(ctx, e.cfg.BookDatabaseID, map[string]any{})
	if err != nil {
		e.log.Error("book database query failed",
			zap.String("database_id", e.cfg.BookDatabaseID),
			zap.Error(err),
		)
		s.count(func(c *ingest.RunCounters) { c.Failures++ })
		if len(rows) == 0 {
			return
		}
		e.log.Warn("continuing with partially fetched book rows", zap.Int("rows", len(rows)))
	}
	e.log.Info("processing book database", zap.Int("rows", len(rows)))

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		nodeID := e.deps.Graph.NodeID(row.ID + "-book")

		name := row.TitleText()
		if name == "" {
			e.log.Warn("book without a title", zap.String("row_id", row.ID))
			name = "Unnamed"
		}
		slug := row.RichTextProp("slug")
		if slug == "" {
			slug = "unnamed-slug"
		}

		var categoryID string
		if rels := row.RelationIDs("category"); len(rels) > 0 {
			categoryID = e.deps.Graph.NodeID(rels[0] + "-category")
		}

		var coverRef string
		if coverURL := row.CoverURL("cover"); coverURL != "" && e.deps.Assets != nil {
			ref, err := e.deps.Assets.Materialize(ctx, coverURL, nodeID)
			if err != nil {
				e.log.Warn("failed to materialize book cover",
					zap.String("book", name),
					zap.Error(err),
				)
			} else {
				coverRef = ref
			}
		}

		book := &ingest.Book{
			ID:          nodeID,
			Name:        name,
			Slug:        slug,
			URL:         ingest.CommonURI + "/" + ingest.BookURI + "/" + slug,
			CategoryID:  categoryID,
			CoverRef:    coverRef,
			Description: row.RichTextProp("description"),
			CreatedAt:   ingest.FormatTimestamp(row.CreatedTime),
			UpdatedAt:   ingest.FormatTimestamp(row.LastEditedTime),
		}
		if err := e.deps.Graph.CreateNode(ctx, book); err != nil {
			e.log.Error("failed to create book node",
				zap.String("book", name),
				zap.Error(err),
			)
			s.count(func(c *ingest.RunCounters) { c.Failures++ })
			continue
		}
		s.count(func(c *ingest.RunCounters) { c.Books++ })
		e.log.Info("created book",
			zap.String("book", name),
			zap.String("url", book.URL),
		)
	}
}
