package related

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemem "github.com/jaehyun-p/notion-ingest/internal/cache/memory"
	graphmem "github.com/jaehyun-p/notion-ingest/internal/graph/memory"
	"github.com/jaehyun-p/notion-ingest/internal/hash/md5"
	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

func newTestEngine(g *graphmem.Graph) (*Engine, *cachemem.Cache) {
	cache := cachemem.New()
	return New(g, cache, md5.New(), zap.NewNop()), cache
}

func seedPosts(t *testing.T, g *graphmem.Graph, posts ...*ingest.Post) {
	t.Helper()
	for _, p := range posts {
		require.NoError(t, g.CreateNode(context.Background(), p))
	}
}

func relatedFor(t *testing.T, g *graphmem.Graph, postID string) *ingest.RelatedPost {
	t.Helper()
	node, ok := g.GetNode(context.Background(), g.NodeID(postID+"-related"))
	require.True(t, ok)
	rel, ok := node.(*ingest.RelatedPost)
	require.True(t, ok)
	return rel
}

func TestBuildLinksSimilarPosts(t *testing.T) {
	t.Parallel()

	g := graphmem.New(md5.New(), zap.NewNop())
	seedPosts(t, g,
		&ingest.Post{ID: "p1", Title: "Go concurrency", RawText: "goroutines channels select scheduler"},
		&ingest.Post{ID: "p2", Title: "Go channels deep dive", RawText: "channels select buffered goroutines"},
		&ingest.Post{ID: "p3", Title: "Sourdough baking", RawText: "flour starter hydration oven"},
	)

	engine, _ := newTestEngine(g)
	created, err := engine.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, created)

	rel := relatedFor(t, g, "p1")
	require.Equal(t, "p1", rel.PostID)
	require.NotEmpty(t, rel.Related)
	require.Equal(t, "p2", rel.Related[0])
	require.NotContains(t, rel.Related, "p1")
}

func TestBuildCapsRelatedList(t *testing.T) {
	t.Parallel()

	g := graphmem.New(md5.New(), zap.NewNop())
	for i := 0; i < 10; i++ {
		seedPosts(t, g, &ingest.Post{
			ID:      fmt.Sprintf("p%02d", i),
			Title:   "Shared topic",
			RawText: "kubernetes deployment rollout strategy cluster",
		})
	}

	engine, _ := newTestEngine(g)
	created, err := engine.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, created)

	rel := relatedFor(t, g, "p00")
	require.Len(t, rel.Related, maxRelated)
}

func TestBuildTieBreaksByNodeID(t *testing.T) {
	t.Parallel()

	g := graphmem.New(md5.New(), zap.NewNop())
	// Identical text everywhere, so every pair ties. Order must come from IDs.
	seedPosts(t, g,
		&ingest.Post{ID: "c", Title: "same", RawText: "same words everywhere"},
		&ingest.Post{ID: "a", Title: "same", RawText: "same words everywhere"},
		&ingest.Post{ID: "b", Title: "same", RawText: "same words everywhere"},
	)

	engine, _ := newTestEngine(g)
	_, err := engine.Build(context.Background())
	require.NoError(t, err)

	rel := relatedFor(t, g, "c")
	require.Equal(t, []string{"a", "b"}, rel.Related)
}

func TestBuildEmptyCorpus(t *testing.T) {
	t.Parallel()

	g := graphmem.New(md5.New(), zap.NewNop())
	engine, _ := newTestEngine(g)
	created, err := engine.Build(context.Background())
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestBuildNoOverlapYieldsEmptyRelated(t *testing.T) {
	t.Parallel()

	g := graphmem.New(md5.New(), zap.NewNop())
	seedPosts(t, g,
		&ingest.Post{ID: "p1", Title: "alpha", RawText: "completely distinct vocabulary"},
		&ingest.Post{ID: "p2", Title: "beta", RawText: "nothing shared whatsoever"},
	)

	engine, _ := newTestEngine(g)
	created, err := engine.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, created)

	rel := relatedFor(t, g, "p1")
	require.Empty(t, rel.Related)
}

func TestBuildStoresCleanedTextInCache(t *testing.T) {
	t.Parallel()

	hasher := md5.New()
	g := graphmem.New(hasher, zap.NewNop())
	seedPosts(t, g, &ingest.Post{ID: "p1", Title: "Go concurrency", RawText: "goroutines channels"})

	engine, cache := newTestEngine(g)
	_, err := engine.Build(context.Background())
	require.NoError(t, err)

	key := textCacheKeyPrefix + hasher.Hash([]byte("Go concurrency goroutines channels"))
	cached, ok, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "go concurrency goroutines channels", string(cached))
}

func TestBuildReusesCachedCleanedText(t *testing.T) {
	t.Parallel()

	hasher := md5.New()
	g := graphmem.New(hasher, zap.NewNop())
	// The raw texts share no vocabulary, so a fresh tokenization would leave
	// both posts unrelated.
	seedPosts(t, g,
		&ingest.Post{ID: "p1", Title: "alpha", RawText: "unrelated vocabulary here"},
		&ingest.Post{ID: "p2", Title: "beta", RawText: "different words entirely"},
	)

	cache := cachemem.New()
	for _, text := range []string{
		"alpha unrelated vocabulary here",
		"beta different words entirely",
	} {
		key := textCacheKeyPrefix + hasher.Hash([]byte(text))
		require.NoError(t, cache.Set(context.Background(), key, []byte("shared topic words")))
	}

	engine := New(g, cache, hasher, zap.NewNop())
	_, err := engine.Build(context.Background())
	require.NoError(t, err)

	// The cached cleaned text won over the raw text, proving the tokenizer
	// was skipped.
	rel := relatedFor(t, g, "p1")
	require.Equal(t, []string{"p2"}, rel.Related)
}
