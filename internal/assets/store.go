// Package assets downloads remote files referenced by image blocks and book
// covers and registers them as stable binary assets.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

const cacheKeyPrefix = "image-"

// Store materializes remote URLs into blob storage. Downloads are
// content-addressed by URL hash in the durable cache, so a URL already
// materialized by a previous run is never fetched again.
type Store struct {
	client *http.Client
	cache  ingest.DurableCache
	blobs  ingest.BlobStore
	// static receives GIFs verbatim under their original basename. Animated
	// images skip the image pipeline and are served as static files.
	static ingest.BlobStore
	hasher ingest.Hasher
	log    *zap.Logger
}

// New creates a Store.
func New(cache ingest.DurableCache, blobs, static ingest.BlobStore, hasher ingest.Hasher, log *zap.Logger) *Store {
	return &Store{
		client: &http.Client{Timeout: 60 * time.Second},
		cache:  cache,
		blobs:  blobs,
		static: static,
		hasher: hasher,
		log:    log,
	}
}

// Materialize downloads rawURL and stores it as an asset, returning the
// stable asset reference. The durable cache short-circuits repeat downloads
// across runs.
func (s *Store) Materialize(ctx context.Context, rawURL, parentID string) (string, error) {
	key := cacheKeyPrefix + s.hasher.Hash([]byte(rawURL))
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("asset cache lookup failed", zap.String("url", rawURL), zap.Error(err))
	} else if ok {
		s.log.Debug("asset cache hit", zap.String("url", rawURL))
		return string(cached), nil
	}

	data, contentType, err := s.download(ctx, rawURL)
	if err != nil {
		return "", err
	}

	name, ext, err := fileName(rawURL)
	if err != nil {
		return "", err
	}

	var assetRef string
	if ext == ".gif" {
		// Keep the original basename so in-content links stay stable.
		if _, err := s.static.PutObject(ctx, name, contentType, bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("store gif %q: %w", name, err)
		}
		assetRef = "/" + name
	} else {
		objectPath := "images/" + s.hasher.Hash(data) + ext
		if _, err := s.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("store asset %q: %w", objectPath, err)
		}
		assetRef = objectPath
	}

	if err := s.cache.Set(ctx, key, []byte(assetRef)); err != nil {
		s.log.Warn("asset cache store failed", zap.String("url", rawURL), zap.Error(err))
	}
	s.log.Info("materialized asset",
		zap.String("url", rawURL),
		zap.String("asset", assetRef),
		zap.String("parent_id", parentID),
	)
	return assetRef, nil
}

func (s *Store) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build asset request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download asset %q: unexpected status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read asset body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// fileName extracts the basename and extension of a URL path, ignoring any
// query string (signed URLs carry expiry tokens there).
func fileName(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse asset url: %w", err)
	}
	base := path.Base(u.Path)
	return base, strings.ToLower(path.Ext(base)), nil
}
