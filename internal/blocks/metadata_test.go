package blocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemem "github.com/jaehyun-p/notion-ingest/internal/cache/memory"
	graphmem "github.com/jaehyun-p/notion-ingest/internal/graph/memory"
	"github.com/jaehyun-p/notion-ingest/internal/hash/md5"
	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// fakeScraper counts scrapes and can fail per URL.
type fakeScraper struct {
	calls map[string]int
	fail  map[string]error
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{calls: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (ingest.LinkMetadata, error) {
	f.calls[url]++
	if err, ok := f.fail[url]; ok {
		return ingest.LinkMetadata{}, err
	}
	return ingest.LinkMetadata{Title: "title of " + url, URL: url}, nil
}

func newEnricher(scraper ingest.MetadataScraper) (*Enricher, *graphmem.Graph, *cachemem.Cache) {
	graph := graphmem.New(md5.New(), zap.NewNop())
	cache := cachemem.New()
	return NewEnricher(scraper, cache, graph, md5.New(), zap.NewNop()), graph, cache
}

func linked(content, href string) ingest.Block {
	return ingest.Block{
		ID:       "b-" + content,
		Kind:     "paragraph",
		RichText: []ingest.RichText{{PlainText: content, Href: href}},
	}
}

func TestEnrichPageRewritesExternalLinks(t *testing.T) {
	t.Parallel()

	scraper := newFakeScraper()
	e, graph, _ := newEnricher(scraper)

	blks := []ingest.Block{
		linked("see docs", "https://example.com/docs"),
		linked("internal", "/some-page"),
	}
	count := e.EnrichPage(context.Background(), "post-node", blks)
	require.Equal(t, 1, count)

	wantID := graph.NodeID("https://example.com/docs-metadata")
	require.Equal(t, wantID, blks[0].RichText[0].Href)
	require.Equal(t, "/some-page", blks[1].RichText[0].Href)

	node, ok := graph.GetNode(context.Background(), wantID)
	require.True(t, ok)
	meta, ok := node.(*ingest.Metadata)
	require.True(t, ok)
	require.Equal(t, "https://example.com/docs", meta.URL)
	require.Equal(t, []string{wantID}, graph.Children("post-node"))
}

func TestEnrichPageDeduplicatesLinksWithinPage(t *testing.T) {
	t.Parallel()

	scraper := newFakeScraper()
	e, _, _ := newEnricher(scraper)

	blks := []ingest.Block{
		linked("first", "https://example.com/docs"),
		linked("second", "https://example.com/docs"),
	}
	count := e.EnrichPage(context.Background(), "post-node", blks)
	require.Equal(t, 1, count)
	require.Equal(t, 1, scraper.calls["https://example.com/docs"])
	require.Equal(t, blks[0].RichText[0].Href, blks[1].RichText[0].Href)
}

func TestEnrichPageUsesDurableCacheAcrossPages(t *testing.T) {
	t.Parallel()

	scraper := newFakeScraper()
	e, _, _ := newEnricher(scraper)

	first := []ingest.Block{linked("a", "https://example.com/docs")}
	e.EnrichPage(context.Background(), "post-a", first)

	second := []ingest.Block{linked("b", "https://example.com/docs")}
	e.EnrichPage(context.Background(), "post-b", second)

	require.Equal(t, 1, scraper.calls["https://example.com/docs"])
}

func TestEnrichPageScrapeFailureLeavesHref(t *testing.T) {
	t.Parallel()

	scraper := newFakeScraper()
	scraper.fail["https://down.example.com"] = errors.New("unreachable")
	e, _, _ := newEnricher(scraper)

	blks := []ingest.Block{linked("dead", "https://down.example.com")}
	count := e.EnrichPage(context.Background(), "post-node", blks)
	require.Equal(t, 0, count)
	require.Equal(t, "https://down.example.com", blks[0].RichText[0].Href)
}

func TestEnrichPageWalksNestedContent(t *testing.T) {
	t.Parallel()

	scraper := newFakeScraper()
	e, _, _ := newEnricher(scraper)

	parent := ingest.Block{ID: "toggle", Kind: "toggle"}
	parent.Children = []ingest.Block{linked("deep", "https://example.com/nested")}
	table := ingest.Block{ID: "t", Kind: "table_row", Cells: [][]ingest.RichText{
		{{PlainText: "cell link", Href: "https://example.com/cell"}},
	}}

	count := e.EnrichPage(context.Background(), "post-node", []ingest.Block{parent, table})
	require.Equal(t, 2, count)
	require.NotEqual(t, "https://example.com/nested", parent.Children[0].RichText[0].Href)
	require.NotEqual(t, "https://example.com/cell", table.Cells[0][0].Href)
}
