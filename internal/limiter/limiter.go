// Package limiter defines interfaces and implementations for friend-request rate limiting.
package limiter

import (
	"context"

	"golang.org/x/crypto/blake2b"
)

// Limiter bounds inbound friend requests per target profile. A target
// that received maxreq requests inside the window rejects further ones.
type Limiter interface {
	// Allow reports whether another request toward the target is permitted.
	Allow(ctx context.Context, targetURL string) (bool, error)
	// Record logs an accepted request against the target.
	Record(ctx context.Context, targetURL string) error
}

// HashTarget returns a stable hash for a profile URL so raw URLs are not
// stored in the limiter table.
func HashTarget(url string) []byte {
	h := blake2b.Sum256([]byte(url))
	return h[:]
}
