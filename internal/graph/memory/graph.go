// Package memory implements the content graph as an in-process store. The
// graph is rebuilt from scratch on every ingestion run and read out by the
// site generator afterwards.
package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
	"github.com/jaehyun-p/notion-ingest/internal/metrics"
)

// Graph stores typed nodes and parent-child links. CreateNode upserts by
// node ID, so re-emitting a node replaces the previous version.
type Graph struct {
	hasher ingest.Hasher
	log    *zap.Logger

	mu    sync.RWMutex
	nodes map[string]ingest.Node
	// edges maps a parent node ID to the set of child node IDs.
	edges map[string]map[string]struct{}
}

// New creates an empty Graph.
func New(hasher ingest.Hasher, log *zap.Logger) *Graph {
	return &Graph{
		hasher: hasher,
		log:    log,
		nodes:  make(map[string]ingest.Node),
		edges:  make(map[string]map[string]struct{}),
	}
}

// NodeID derives the stable graph ID for a raw source identifier. The same
// input always yields the same ID, so repeated runs upsert instead of
// duplicating.
func (g *Graph) NodeID(raw string) string {
	return g.hasher.Hash([]byte(raw))
}

// CreateNode upserts node by its ID.
func (g *Graph) CreateNode(_ context.Context, node ingest.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.NodeID()]; exists {
		g.log.Debug("replacing node",
			zap.String("node_id", node.NodeID()),
			zap.String("type", string(node.Type())),
		)
	} else {
		metrics.ObserveNode(string(node.Type()))
	}
	g.nodes[node.NodeID()] = node
	return nil
}

// CreateParentChildLink records a parent-child edge. Duplicate links are
// idempotent.
func (g *Graph) CreateParentChildLink(_ context.Context, parentID, childID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	children, ok := g.edges[parentID]
	if !ok {
		children = make(map[string]struct{})
		g.edges[parentID] = children
	}
	children[childID] = struct{}{}
	return nil
}

// GetNode returns the node stored under id.
func (g *Graph) GetNode(_ context.Context, id string) (ingest.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	return node, ok
}

// GetNodesByType returns all nodes of the given type, ordered by node ID so
// consumers see a deterministic sequence.
func (g *Graph) GetNodesByType(_ context.Context, t ingest.NodeType) []ingest.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []ingest.Node
	for _, node := range g.nodes {
		if node.Type() == t {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID() < out[j].NodeID() })
	return out
}

// Children returns the child node IDs linked under parentID, sorted.
func (g *Graph) Children(parentID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	children, ok := g.edges[parentID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(children))
	for id := range children {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of stored nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
