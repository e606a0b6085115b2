package blocks

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

const metadataCachePrefix = "metadata-"

// Enricher resolves outbound hyperlinks in page content into Metadata nodes
// and rewrites each link's href to the node ID so the renderer can show a
// link preview. Scrape results persist in the durable cache across runs.
type Enricher struct {
	scraper ingest.MetadataScraper
	cache   ingest.DurableCache
	graph   ingest.GraphStore
	hasher  ingest.Hasher
	log     *zap.Logger
}

// NewEnricher builds an Enricher.
func NewEnricher(scraper ingest.MetadataScraper, cache ingest.DurableCache, graph ingest.GraphStore, hasher ingest.Hasher, log *zap.Logger) *Enricher {
	return &Enricher{
		scraper: scraper,
		cache:   cache,
		graph:   graph,
		hasher:  hasher,
		log:     log,
	}
}

// EnrichPage walks the block tree of a page, resolves every distinct
// external link once and rewrites hrefs to the resulting node IDs. Returns
// the number of Metadata nodes emitted. A failed scrape leaves the href
// untouched.
func (e *Enricher) EnrichPage(ctx context.Context, postNodeID string, blks []ingest.Block) int {
	resolved := make(map[string]string)
	e.walk(ctx, postNodeID, blks, resolved)
	return len(resolved)
}

func (e *Enricher) walk(ctx context.Context, postNodeID string, blks []ingest.Block, resolved map[string]string) {
	for i := range blks {
		e.rewrite(ctx, postNodeID, blks[i].RichText, resolved)
		e.rewrite(ctx, postNodeID, blks[i].Caption, resolved)
		for _, cell := range blks[i].Cells {
			e.rewrite(ctx, postNodeID, cell, resolved)
		}
		if len(blks[i].Children) > 0 {
			e.walk(ctx, postNodeID, blks[i].Children, resolved)
		}
	}
}

func (e *Enricher) rewrite(ctx context.Context, postNodeID string, spans []ingest.RichText, resolved map[string]string) {
	for i := range spans {
		href := spans[i].Href
		if !isExternalLink(href) {
			continue
		}
		nodeID, ok := resolved[href]
		if !ok {
			var err error
			nodeID, err = e.resolve(ctx, postNodeID, href)
			if err != nil {
				e.log.Warn("link metadata lookup failed",
					zap.String("url", href),
					zap.Error(err),
				)
				continue
			}
			resolved[href] = nodeID
		}
		spans[i].Href = nodeID
	}
}

// resolve returns the Metadata node ID for url, scraping on cache miss.
func (e *Enricher) resolve(ctx context.Context, postNodeID, url string) (string, error) {
	key := metadataCachePrefix + e.hasher.Hash([]byte(url))

	var meta ingest.LinkMetadata
	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Warn("metadata cache lookup failed", zap.String("url", url), zap.Error(err))
		ok = false
	}
	if ok {
		if err := json.Unmarshal(cached, &meta); err != nil {
			ok = false
		}
	}
	if !ok {
		meta, err = e.scraper.Scrape(ctx, url)
		if err != nil {
			return "", err
		}
		if encoded, err := json.Marshal(meta); err == nil {
			if err := e.cache.Set(ctx, key, encoded); err != nil {
				e.log.Warn("metadata cache store failed", zap.String("url", url), zap.Error(err))
			}
		}
	}

	nodeID := e.graph.NodeID(url + "-metadata")
	node := &ingest.Metadata{
		ID:          nodeID,
		Title:       meta.Title,
		Description: meta.Description,
		Image:       meta.Image,
		URL:         url,
	}
	if err := e.graph.CreateNode(ctx, node); err != nil {
		return "", err
	}
	if postNodeID != "" {
		if err := e.graph.CreateParentChildLink(ctx, postNodeID, nodeID); err != nil {
			return "", err
		}
	}
	return nodeID, nil
}

func isExternalLink(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}
