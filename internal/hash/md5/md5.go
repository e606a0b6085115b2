// Package md5 provides MD5 hashing utilities for deterministic node IDs
// and content-addressed cache keys.
package md5

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
)

// Hasher implements ingest.Hasher using MD5.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content addressing, not security
	return hex.EncodeToString(sum[:])
}
