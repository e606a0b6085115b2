package notion

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// pageSize is the page_size parameter sent to children listings.
const pageSize = 100

// transportDoer is the slice of Transport the collector needs.
type transportDoer interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
}

// Paginator drains cursor-based paginated endpoints into complete result
// sets. If the API claims more pages but omits the next cursor, collection
// stops rather than looping forever.
type Paginator struct {
	transport transportDoer
	log       *zap.Logger
}

// NewPaginator builds a Paginator on top of the retrying transport.
func NewPaginator(transport transportDoer, log *zap.Logger) *Paginator {
	return &Paginator{transport: transport, log: log}
}

// CollectQuery drains a database query endpoint and returns every row. A
// mid-pagination failure returns the rows collected so far along with the
// error, so the caller can keep what was already fetched.
func (p *Paginator) CollectQuery(ctx context.Context, databaseID string, body map[string]any) ([]ingest.Page, error) {
	path := fmt.Sprintf("databases/%s/query", databaseID)

	var rows []ingest.Page
	cursor := ""
	for {
		reqBody := make(map[string]any, len(body)+1)
		for k, v := range body {
			reqBody[k] = v
		}
		if cursor != "" {
			reqBody["start_cursor"] = cursor
		}

		data, err := p.transport.Post(ctx, path, reqBody)
		if err != nil {
			return rows, fmt.Errorf("query database %s: %w", databaseID, err)
		}
		var result ingest.QueryResult
		if err := json.Unmarshal(data, &result); err != nil {
			return rows, fmt.Errorf("decode query response for %s: %w", databaseID, err)
		}
		rows = append(rows, result.Results...)

		if !result.HasMore {
			break
		}
		if result.NextCursor == "" {
			p.log.Warn("has_more set without next_cursor, stopping pagination",
				zap.String("database_id", databaseID),
			)
			break
		}
		cursor = result.NextCursor
	}
	return rows, nil
}

// CollectBlocks drains the children listing of a block or page.
func (p *Paginator) CollectBlocks(ctx context.Context, blockID string) ([]ingest.Block, error) {
	var blocks []ingest.Block
	cursor := ""
	for {
		path := fmt.Sprintf("blocks/%s/children?page_size=%d", blockID, pageSize)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}

		data, err := p.transport.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", blockID, err)
		}
		var result ingest.BlockList
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode children of %s: %w", blockID, err)
		}
		blocks = append(blocks, result.Results...)

		if !result.HasMore {
			break
		}
		if result.NextCursor == "" {
			p.log.Warn("has_more set without next_cursor, stopping pagination",
				zap.String("block_id", blockID),
			)
			break
		}
		cursor = result.NextCursor
	}
	return blocks, nil
}
