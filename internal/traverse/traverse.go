// Package traverse implements the depth-first descent over the content
// tree: nested databases become categories, leaf rows become posts, and
// every relationship (category/book/tag/post) is emitted as graph edges.
package traverse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/blocks"
	"github.com/jaehyun-p/notion-ingest/internal/ingest"
	"github.com/jaehyun-p/notion-ingest/internal/metrics"
)

const defaultPostTimeout = 30 * time.Second

// Config controls one ingestion run.
type Config struct {
	// RootDatabaseID is the container whose tree is traversed. Required.
	RootDatabaseID string
	// BookDatabaseID, when set, is ingested as the flat book database before
	// traversal starts.
	BookDatabaseID string
	// PostTimeout bounds end-to-end processing of a single post (default 30s).
	PostTimeout time.Duration
}

// ContentService reads rows and block trees from the remote document API.
// PagesBlocks omits pages whose fetch failed from the result map.
type ContentService interface {
	QueryDatabase(ctx context.Context, databaseID string, body map[string]any) ([]ingest.Page, error)
	PagesBlocks(ctx context.Context, pageIDs []string) map[string][]ingest.Block
	ClearCache()
}

// PageProcessor turns a page's raw block tree into render-ready content.
type PageProcessor interface {
	ProcessPage(ctx context.Context, pageID string, blks []ingest.Block) blocks.PageContent
}

// LinkEnricher resolves outbound hyperlinks into Metadata nodes.
type LinkEnricher interface {
	EnrichPage(ctx context.Context, postNodeID string, blks []ingest.Block) int
}

// RelatedBuilder computes related posts once all posts are in the graph.
type RelatedBuilder interface {
	Build(ctx context.Context) (int, error)
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Service   ContentService
	Graph     ingest.GraphStore
	Processor PageProcessor
	Enricher  LinkEnricher
	Related   RelatedBuilder
	Assets    ingest.AssetStore
	Cache     ingest.DurableCache
	Hasher    ingest.Hasher
	IDs       ingest.IDGenerator
	Clock     ingest.Clock
}

// Engine drives a full ingestion run.
type Engine struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	current *session
}

// NewEngine builds an Engine.
func NewEngine(cfg Config, deps Deps, log *zap.Logger) *Engine {
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = defaultPostTimeout
	}
	return &Engine{cfg: cfg, deps: deps, log: log}
}

// CurrentRun snapshots the most recent run's progress.
func (e *Engine) CurrentRun() (ingest.RunSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ingest.RunSummary{}, false
	}
	return e.current.summary(), true
}

// Run executes one full ingestion: book database, tree traversal, deferred
// book-category links, then the related-content pass. The run is
// best-effort: branch and post failures are contained and counted.
func (e *Engine) Run(ctx context.Context) (ingest.RunSummary, error) {
	if e.cfg.RootDatabaseID == "" {
		return ingest.RunSummary{}, fmt.Errorf("root database id is required")
	}
	runID, err := e.deps.IDs.NewID()
	if err != nil {
		return ingest.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}

	s := newSession(runID, e.deps.Clock.Now())
	e.mu.Lock()
	e.current = s
	e.mu.Unlock()

	e.log.Info("ingestion run starting",
		zap.String("run_id", runID),
		zap.String("root_database_id", e.cfg.RootDatabaseID),
	)

	if e.cfg.BookDatabaseID != "" {
		e.ingestBooks(ctx, s)
	}

	e.processDatabase(ctx, s, e.cfg.RootDatabaseID, "", "")
	e.resolvePendingBooks(ctx, s)

	if e.deps.Related != nil {
		related, err := e.deps.Related.Build(ctx)
		if err != nil {
			e.log.Error("related-content pass failed", zap.Error(err))
			s.count(func(c *ingest.RunCounters) { c.Failures++ })
		}
		s.count(func(c *ingest.RunCounters) { c.Related = related })
	}

	e.deps.Service.ClearCache()
	s.finish(e.deps.Clock.Now())

	summary := s.summary()
	metrics.ObserveRunDuration(summary.FinishedAt.Sub(summary.StartedAt))
	e.log.Info("ingestion run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("categories", summary.Counters.Categories),
		zap.Int("books", summary.Counters.Books),
		zap.Int("tags", summary.Counters.Tags),
		zap.Int("posts", summary.Counters.Posts),
		zap.Int("metadata", summary.Counters.Metadata),
		zap.Int("related", summary.Counters.Related),
		zap.Int("failures", summary.Counters.Failures),
	)
	return summary, ctx.Err()
}

// processDatabase ingests one database's rows. Each row is classified by
// its first child block: a child database recurses as a category, anything
// else is a post. A query failure abandons only the rows that were never
// fetched; rows from pages drained before the failure are still processed.
func (e *Engine) processDatabase(ctx context.Context, s *session, databaseID, parentCategoryID, parentURL string) {
	rows, err := e.deps.Service.QueryDatabase(ctx, databaseID, map[string]any{})
	if err != nil {
		e.log.Error("database query failed",
			zap.String("database_id", databaseID),
			zap.Error(err),
		)
		s.count(func(c *ingest.RunCounters) { c.Failures++ })
		if len(rows) == 0 {
			return
		}
		e.log.Warn("continuing with partially fetched rows",
			zap.String("database_id", databaseID),
			zap.Int("rows", len(rows)),
		)
	}
	e.log.Info("processing database",
		zap.String("database_id", databaseID),
		zap.Int("rows", len(rows)),
	)
	if len(rows) == 0 {
		return
	}

	// Fetch every row's block tree up front under the service's concurrency
	// limit; classification below then reads from the prefetched map.
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	trees := e.deps.Service.PagesBlocks(ctx, ids)

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		blks, ok := trees[row.ID]
		if !ok {
			e.log.Warn("failed to fetch row blocks",
				zap.String("row_id", row.ID),
			)
			s.count(func(c *ingest.RunCounters) { c.Failures++ })
			continue
		}
		if len(blks) > 0 && blks[0].Kind == "child_database" {
			e.processCategory(ctx, s, row, blks[0], parentCategoryID, parentURL)
		} else {
			e.processPost(ctx, s, row, blks, parentCategoryID, parentURL)
		}
	}
}

// processCategory emits a Category node for a child-database row, resolves
// book relations attached to the row and recurses into the sub-database.
func (e *Engine) processCategory(ctx context.Context, s *session, row ingest.Page, dbBlock ingest.Block, parentCategoryID, parentURL string) {
	name := dbBlock.ChildDatabaseTitle
	if name == "" {
		e.log.Warn("category without a title", zap.String("block_id", dbBlock.ID))
		name = "Unnamed Category"
	}
	slug := ingest.Slugify(name)
	if slug == "" {
		slug = "no-title-" + dbBlock.ID
	}

	nodeID := e.deps.Graph.NodeID(dbBlock.ID + "-category")
	categoryURL := parentURL + "/" + slug
	category := &ingest.Category{
		ID:       nodeID,
		Name:     name,
		ParentID: parentCategoryID,
		Slug:     slug,
		URL:      ingest.CommonURI + "/" + ingest.CategoryURI + categoryURL,
	}

	for _, rawBookID := range row.RelationIDs("book") {
		bookNodeID := e.deps.Graph.NodeID(rawBookID + "-book")
		node, ok := e.deps.Graph.GetNode(ctx, bookNodeID)
		if !ok {
			s.deferBookLink(nodeID, bookNodeID)
			continue
		}
		book, ok := node.(*ingest.Book)
		if !ok {
			continue
		}
		if err := e.deps.Graph.CreateParentChildLink(ctx, nodeID, bookNodeID); err != nil {
			e.log.Warn("failed to link category to book", zap.Error(err))
			continue
		}
		updated := *book
		updated.CategoryID = nodeID
		if err := e.deps.Graph.CreateNode(ctx, &updated); err != nil {
			e.log.Warn("failed to update book category", zap.Error(err))
			continue
		}
		category.Books = append(category.Books, bookNodeID)
		e.log.Info("linked category to book",
			zap.String("category", name),
			zap.String("book", book.Name),
		)
	}

	if err := e.deps.Graph.CreateNode(ctx, category); err != nil {
		e.log.Error("failed to create category node",
			zap.String("category", name),
			zap.Error(err),
		)
		s.count(func(c *ingest.RunCounters) { c.Failures++ })
		return
	}
	if parentCategoryID != "" {
		if err := e.deps.Graph.CreateParentChildLink(ctx, parentCategoryID, nodeID); err != nil {
			e.log.Warn("failed to link parent category", zap.Error(err))
		}
	}
	s.count(func(c *ingest.RunCounters) { c.Categories++ })
	e.log.Info("created category",
		zap.String("category", name),
		zap.String("url", category.URL),
	)

	e.processDatabase(ctx, s, dbBlock.ID, nodeID, categoryURL)
}

// processPost emits a Post node for a leaf row: tags are deduplicated
// through the session tag map, the block tree is processed, links are
// declared, and the whole operation is bounded by the per-post timeout.
func (e *Engine) processPost(ctx context.Context, s *session, row ingest.Page, blks []ingest.Block, parentCategoryID, parentURL string) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PostTimeout)
	defer cancel()

	nodeID := e.deps.Graph.NodeID(row.ID + "-page")

	// Idempotent re-run: a node already emitted by a prior pass is skipped
	// entirely.
	if _, cached, err := e.deps.Cache.Get(ctx, "node-"+nodeID); err == nil && cached {
		if _, exists := e.deps.Graph.GetNode(ctx, nodeID); exists {
			e.log.Info("skipping already created post", zap.String("node_id", nodeID))
			return
		}
	}

	title := row.TitleText()
	if title == "" {
		e.log.Warn("post without a title", zap.String("row_id", row.ID))
		title = "Unnamed"
	}
	slugSource := row.RichTextProp("slug")
	if slugSource == "" {
		slugSource = e.deps.Hasher.Hash([]byte(title))
	}
	slug := ingest.Slugify(slugSource)

	tagIDs := e.resolveTags(ctx, s, row)

	var bookNodeID string
	if rels := row.RelationIDs("book"); len(rels) > 0 {
		candidate := e.deps.Graph.NodeID(rels[0] + "-book")
		if _, ok := e.deps.Graph.GetNode(ctx, candidate); ok {
			bookNodeID = candidate
		}
	}

	content := e.deps.Processor.ProcessPage(ctx, row.ID, blks)
	if ctx.Err() != nil {
		e.log.Warn("post processing timed out",
			zap.String("row_id", row.ID),
			zap.String("title", title),
			zap.Duration("timeout", e.cfg.PostTimeout),
		)
		s.count(func(c *ingest.RunCounters) { c.Failures++ })
		return
	}

	description := row.RichTextProp("description")
	if description == "" {
		description = truncateRunes(content.RawText, 400)
	}

	post := &ingest.Post{
		ID:           nodeID,
		CategoryID:   parentCategoryID,
		BookID:       bookNodeID,
		BookIndex:    row.NumberProp("bookIndex", 0),
		Title:        title,
		Slug:         slug,
		URL:          ingest.CommonURI + "/" + ingest.PostURI + parentURL + "/" + slug,
		Content:      content.Blocks,
		Description:  description,
		RawText:      content.RawText,
		TOC:          content.TOC,
		TagIDs:       tagIDs,
		ThumbnailRef: content.ThumbnailRef,
		CreatedAt:    ingest.FormatTimestamp(row.CreatedTime),
		UpdatedAt:    ingest.FormatTimestamp(row.LastEditedTime),
	}
	if err := e.deps.Graph.CreateNode(ctx, post); err != nil {
		e.log.Error("failed to create post node",
			zap.String("title", title),
			zap.Error(err),
		)
		s.count(func(c *ingest.RunCounters) { c.Failures++ })
		return
	}

	if e.deps.Enricher != nil {
		emitted := e.deps.Enricher.EnrichPage(ctx, nodeID, post.Content)
		s.count(func(c *ingest.RunCounters) { c.Metadata += emitted })
	}

	if bookNodeID != "" {
		if err := e.deps.Graph.CreateParentChildLink(ctx, bookNodeID, nodeID); err != nil {
			e.log.Warn("failed to link book to post", zap.Error(err))
		}
	}
	for _, tagID := range tagIDs {
		if err := e.deps.Graph.CreateParentChildLink(ctx, tagID, nodeID); err != nil {
			e.log.Warn("failed to link tag to post", zap.Error(err))
			continue
		}
		e.attachPostToTag(ctx, tagID, nodeID)
	}
	if parentCategoryID != "" {
		if err := e.deps.Graph.CreateParentChildLink(ctx, parentCategoryID, nodeID); err != nil {
			e.log.Warn("failed to link category to post", zap.Error(err))
		}
	}

	if err := e.deps.Cache.Set(ctx, "node-"+nodeID, []byte(s.runID)); err != nil {
		e.log.Warn("failed to record post in durable cache", zap.Error(err))
	}
	s.count(func(c *ingest.RunCounters) { c.Posts++ })
	e.log.Info("created post",
		zap.String("title", title),
		zap.String("url", post.URL),
		zap.Int("tags", len(tagIDs)),
	)
}

// resolveTags maps the row's multi-select tags to node IDs, creating Tag
// nodes for names unseen this run. First occurrence of a name wins.
func (e *Engine) resolveTags(ctx context.Context, s *session, row ingest.Page) []string {
	var tagIDs []string
	for _, opt := range row.Tags() {
		if id, ok := s.tagID(opt.Name); ok {
			tagIDs = append(tagIDs, id)
			continue
		}
		candidate := e.deps.Graph.NodeID(opt.ID + "-tag")
		winner, created := s.registerTag(opt.Name, candidate)
		if created {
			slug := ingest.Slugify(opt.Name)
			if slug == "" {
				slug = "no-tag-" + winner
			}
			tag := &ingest.Tag{
				ID:    winner,
				Name:  opt.Name,
				Slug:  slug,
				Color: opt.Color,
				URL:   ingest.CommonURI + "/" + ingest.TagURI + "/" + slug,
			}
			if err := e.deps.Graph.CreateNode(ctx, tag); err != nil {
				e.log.Warn("failed to create tag node",
					zap.String("tag", opt.Name),
					zap.Error(err),
				)
				continue
			}
			s.count(func(c *ingest.RunCounters) { c.Tags++ })
			e.log.Info("created tag", zap.String("tag", opt.Name))
		}
		tagIDs = append(tagIDs, winner)
	}
	return tagIDs
}

// attachPostToTag re-emits the tag with the post appended to its post list.
func (e *Engine) attachPostToTag(ctx context.Context, tagID, postID string) {
	node, ok := e.deps.Graph.GetNode(ctx, tagID)
	if !ok {
		return
	}
	tag, ok := node.(*ingest.Tag)
	if !ok {
		return
	}
	updated := *tag
	updated.Posts = append(append([]string(nil), tag.Posts...), postID)
	if err := e.deps.Graph.CreateNode(ctx, &updated); err != nil {
		e.log.Warn("failed to update tag posts", zap.Error(err))
	}
}

// resolvePendingBooks replays the book-category side table after traversal.
func (e *Engine) resolvePendingBooks(ctx context.Context, s *session) {
	for categoryID, bookIDs := range s.drainPendingBooks() {
		categoryNode, ok := e.deps.Graph.GetNode(ctx, categoryID)
		if !ok {
			e.log.Warn("category not found for deferred book links",
				zap.String("category_id", categoryID),
			)
			continue
		}
		category, _ := categoryNode.(*ingest.Category)
		for _, bookID := range bookIDs {
			node, ok := e.deps.Graph.GetNode(ctx, bookID)
			if !ok {
				e.log.Warn("book not found for deferred link", zap.String("book_id", bookID))
				continue
			}
			book, ok := node.(*ingest.Book)
			if !ok {
				continue
			}
			if err := e.deps.Graph.CreateParentChildLink(ctx, categoryID, bookID); err != nil {
				e.log.Warn("failed to link deferred book", zap.Error(err))
				continue
			}
			updated := *book
			updated.CategoryID = categoryID
			if err := e.deps.Graph.CreateNode(ctx, &updated); err != nil {
				e.log.Warn("failed to update deferred book", zap.Error(err))
				continue
			}
			if category != nil {
				refreshed := *category
				refreshed.Books = append(append([]string(nil), category.Books...), bookID)
				if err := e.deps.Graph.CreateNode(ctx, &refreshed); err == nil {
					category = &refreshed
				}
			}
			e.log.Info("linked deferred book to category",
				zap.String("book", book.Name),
				zap.String("category_id", categoryID),
			)
		}
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
