package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
	"github.com/jaehyun-p/notion-ingest/internal/metrics"
)

// collector abstracts the Paginator for testing.
type collector interface {
	CollectQuery(ctx context.Context, databaseID string, body map[string]any) ([]ingest.Page, error)
	CollectBlocks(ctx context.Context, blockID string) ([]ingest.Block, error)
}

// Options tunes Service behavior.
type Options struct {
	// ParallelLimit bounds concurrent block fetches (default 5).
	ParallelLimit int
	// EnableCaching toggles the run-scoped response cache (default on).
	EnableCaching bool
}

// DefaultOptions returns the Service defaults.
func DefaultOptions() Options {
	return Options{ParallelLimit: 5, EnableCaching: true}
}

// Service reads rows and block trees from the remote document API. Results
// are memoized in a run-scoped cache so repeated lookups within one
// traversal never refetch.
type Service struct {
	collector collector
	limiter   *Limiter
	log       *zap.Logger
	caching   bool

	mu         sync.Mutex
	queryCache map[string][]ingest.Page
	blockCache map[string][]ingest.Block
}

// NewService builds a Service.
func NewService(c collector, opts Options, log *zap.Logger) *Service {
	limit := opts.ParallelLimit
	if limit <= 0 {
		limit = DefaultOptions().ParallelLimit
	}
	return &Service{
		collector:  c,
		limiter:    NewLimiter(limit),
		log:        log,
		caching:    opts.EnableCaching,
		queryCache: make(map[string][]ingest.Page),
		blockCache: make(map[string][]ingest.Block),
	}
}

// QueryDatabase returns every row of a database, via the run cache.
func (s *Service) QueryDatabase(ctx context.Context, databaseID string, body map[string]any) ([]ingest.Page, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}
	key := fmt.Sprintf("database-%s-%s", databaseID, bodyJSON)

	if rows, ok := s.cachedQuery(key); ok {
		metrics.ObserveCache("query", true)
		s.log.Info("using cached database query", zap.String("database_id", databaseID))
		return rows, nil
	}
	metrics.ObserveCache("query", false)

	rows, err := s.collector.CollectQuery(ctx, databaseID, body)
	if err != nil {
		// Rows from pages fetched before the failure pass through so the
		// caller can keep them; partial results are never cached.
		return rows, err
	}
	s.storeQuery(key, rows)
	s.log.Info("database query complete",
		zap.String("database_id", databaseID),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// PageBlocks returns the full block tree of a page: the paginated children
// listing plus, recursively, the children of every block that declares
// nested content. The limiter bounds each remote listing, not the tree
// assembly, so deep recursion cannot deadlock the admission queue.
func (s *Service) PageBlocks(ctx context.Context, pageID string) ([]ingest.Block, error) {
	key := "page-blocks-" + pageID

	if blocks, ok := s.cachedBlocks(key); ok {
		metrics.ObserveCache("blocks", true)
		s.log.Info("using cached page blocks", zap.String("page_id", pageID))
		return blocks, nil
	}
	metrics.ObserveCache("blocks", false)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	blocks, err := s.collector.CollectBlocks(ctx, pageID)
	s.limiter.Release()
	if err != nil {
		return nil, err
	}

	blocks, err = s.expandChildren(ctx, blocks)
	if err != nil {
		return nil, err
	}

	s.storeBlocks(key, blocks)
	return blocks, nil
}

// PagesBlocks fetches the block trees of many pages under the concurrency
// limit. A failure on one page never aborts the siblings; failed pages are
// omitted from the result so callers can tell a failed page from an empty
// one.
func (s *Service) PagesBlocks(ctx context.Context, pageIDs []string) map[string][]ingest.Block {
	s.log.Info("fetching blocks for pages",
		zap.Int("pages", len(pageIDs)),
		zap.Int("parallel_limit", s.limiter.Limit()),
	)

	results := make(map[string][]ingest.Block, len(pageIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, pageID := range pageIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			blocks, err := s.PageBlocks(ctx, id)
			if err != nil {
				s.log.Warn("failed to fetch page blocks",
					zap.String("page_id", id),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			results[id] = blocks
			mu.Unlock()
		}(pageID)
	}
	wg.Wait()
	return results
}

// SetParallelLimit adjusts the fetch concurrency at runtime.
func (s *Service) SetParallelLimit(limit int) {
	s.log.Info("updated parallel request limit", zap.Int("limit", limit))
	s.limiter.SetLimit(limit)
}

// ClearCache drops the run-scoped response cache at end of run.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("clearing service cache",
		zap.Int("queries", len(s.queryCache)),
		zap.Int("block_sets", len(s.blockCache)),
	)
	s.queryCache = make(map[string][]ingest.Page)
	s.blockCache = make(map[string][]ingest.Block)
}

// expandChildren recursively fetches nested children for blocks that
// declare them. Failures downgrade to a warning so one bad subtree does not
// lose its siblings. Child blocks of a table are additionally attached as
// its rows.
func (s *Service) expandChildren(ctx context.Context, blocks []ingest.Block) ([]ingest.Block, error) {
	g, ctx := errgroup.WithContext(ctx)
	for i := range blocks {
		if !blocks[i].HasChildren {
			continue
		}
		g.Go(func() error {
			s.log.Debug("fetching children",
				zap.String("block_id", blocks[i].ID),
				zap.String("kind", blocks[i].Kind),
			)
			children, err := s.PageBlocks(ctx, blocks[i].ID)
			if err != nil {
				s.log.Warn("failed to fetch child blocks",
					zap.String("block_id", blocks[i].ID),
					zap.Error(err),
				)
				return nil
			}
			blocks[i].Children = children
			if blocks[i].Kind == "table" {
				blocks[i].Rows = children
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Service) cachedQuery(key string) ([]ingest.Page, bool) {
	if !s.caching {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.queryCache[key]
	return rows, ok
}

func (s *Service) storeQuery(key string, rows []ingest.Page) {
	if !s.caching {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCache[key] = rows
}

func (s *Service) cachedBlocks(key string) ([]ingest.Block, bool) {
	if !s.caching {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks, ok := s.blockCache[key]
	return blocks, ok
}

func (s *Service) storeBlocks(key string, blocks []ingest.Block) {
	if !s.caching {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockCache[key] = blocks
}
