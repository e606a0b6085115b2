package related

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

const (
	// topTermCount bounds each post's vector to its strongest terms.
	topTermCount = 30
	// maxRelated caps the related list per post.
	maxRelated = 6
	// textCacheKeyPrefix namespaces cleaned-text entries in the durable cache.
	textCacheKeyPrefix = "related-text-"
)

// Engine computes related posts over the whole content graph after a run
// has ingested every post.
type Engine struct {
	graph  ingest.GraphStore
	cache  ingest.DurableCache
	hasher ingest.Hasher
	log    *zap.Logger
}

// New builds an Engine.
func New(graph ingest.GraphStore, cache ingest.DurableCache, hasher ingest.Hasher, log *zap.Logger) *Engine {
	return &Engine{graph: graph, cache: cache, hasher: hasher, log: log}
}

// cleanedTokens tokenizes text through the durable cache, keyed by text
// hash, so identical text is cleaned once across runs. Tokens carry no
// whitespace, so the cached form is the space-joined token list.
func (e *Engine) cleanedTokens(ctx context.Context, text string) []string {
	key := textCacheKeyPrefix + e.hasher.Hash([]byte(text))
	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		e.log.Warn("cleaned text cache lookup failed", zap.Error(err))
	} else if ok {
		if len(cached) == 0 {
			return nil
		}
		return strings.Split(string(cached), " ")
	}
	tokens := Tokenize(text)
	if err := e.cache.Set(ctx, key, []byte(strings.Join(tokens, " "))); err != nil {
		e.log.Warn("cleaned text cache store failed", zap.Error(err))
	}
	return tokens
}

// Build scores every post pair by TF-IDF cosine similarity and emits one
// RelatedPost node per post. Pairwise similarities are symmetric and
// computed once. Returns the number of nodes emitted.
func (e *Engine) Build(ctx context.Context) (int, error) {
	nodes := e.graph.GetNodesByType(ctx, ingest.NodeTypePost)
	posts := make([]*ingest.Post, 0, len(nodes))
	for _, node := range nodes {
		if post, ok := node.(*ingest.Post); ok {
			posts = append(posts, post)
		}
	}
	if len(posts) == 0 {
		return 0, nil
	}

	corpus := NewCorpus()
	bags := make([]BagOfWords, len(posts))
	for i, post := range posts {
		bags[i] = NewBag(e.cleanedTokens(ctx, post.Title+" "+post.RawText))
		corpus.Add(bags[i])
	}
	vectors := make([]Vector, len(posts))
	for i, bag := range bags {
		vectors[i] = NewVector(corpus.TopTerms(bag, topTermCount))
	}

	// Memoized by unordered pair so sim(a,b) is computed once.
	sims := make(map[string]float64)
	pairSim := func(i, j int) float64 {
		lo, hi := posts[i].ID, posts[j].ID
		if lo > hi {
			lo, hi = hi, lo
		}
		key := lo + "|" + hi
		if sim, ok := sims[key]; ok {
			return sim
		}
		sim := Cosine(vectors[i], vectors[j])
		sims[key] = sim
		return sim
	}

	created := 0
	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		type scored struct {
			id  string
			sim float64
		}
		candidates := make([]scored, 0, len(posts)-1)
		for j := range posts {
			if j == i {
				continue
			}
			if sim := pairSim(i, j); sim > 0 {
				candidates = append(candidates, scored{id: posts[j].ID, sim: sim})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].sim != candidates[b].sim {
				return candidates[a].sim > candidates[b].sim
			}
			return candidates[a].id < candidates[b].id
		})
		if len(candidates) > maxRelated {
			candidates = candidates[:maxRelated]
		}

		relatedIDs := make([]string, len(candidates))
		for k, c := range candidates {
			relatedIDs[k] = c.id
		}
		node := &ingest.RelatedPost{
			ID:      e.graph.NodeID(post.ID + "-related"),
			PostID:  post.ID,
			Related: relatedIDs,
		}
		if err := e.graph.CreateNode(ctx, node); err != nil {
			return created, fmt.Errorf("create related node for post %s: %w", post.ID, err)
		}
		if err := e.graph.CreateParentChildLink(ctx, post.ID, node.ID); err != nil {
			return created, fmt.Errorf("link related node for post %s: %w", post.ID, err)
		}
		created++
	}

	e.log.Info("related posts computed",
		zap.Int("posts", len(posts)),
		zap.Int("pairs", len(sims)),
	)
	return created, nil
}
