package ingest

import (
	"context"
	"io"
	"time"
)

// GraphStore is the content graph consumed downstream. CreateNode has
// upsert-by-id semantics: emitting a node with an existing ID replaces it.
type GraphStore interface {
	CreateNode(ctx context.Context, node Node) error
	NodeID(raw string) string
	CreateParentChildLink(ctx context.Context, parentID, childID string) error
	GetNode(ctx context.Context, id string) (Node, bool)
	GetNodesByType(ctx context.Context, t NodeType) []Node
}

// DurableCache is a namespaced key-value cache that persists across runs.
type DurableCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// AssetStore downloads a remote resource and registers it as a binary
// asset, returning a stable asset ID.
type AssetStore interface {
	Materialize(ctx context.Context, url, parentID string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// MetadataScraper fetches page metadata (title/description/og-image) for an
// outbound hyperlink.
type MetadataScraper interface {
	Scrape(ctx context.Context, url string) (LinkMetadata, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes hex digests for deterministic IDs and content addressing.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run-session IDs.
type IDGenerator interface {
	NewID() (string, error)
}
