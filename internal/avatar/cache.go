// Package avatar caches local copies of contact avatars.
package avatar

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/dfrnproto/dfrnd/internal/repository"
)

// Fetcher is the subset of the outbound HTTP client the cache needs.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Cache fetches and stores avatars. Fetch is idempotent per
// (contact, source URL): a second call finds the stored copy and skips
// the network round-trip entirely.
type Cache struct {
	fetch Fetcher
	repo  repository.AvatarRepository
}

// New constructs an avatar cache.
func New(fetch Fetcher, repo repository.AvatarRepository) *Cache {
	return &Cache{fetch: fetch, repo: repo}
}

// Fetch downloads and stores the avatar unless a copy already exists.
func (c *Cache) Fetch(ctx context.Context, contactID uuid.UUID, sourceURL string) error {
	if sourceURL == "" {
		return nil
	}
	hash := blake2b.Sum256([]byte(sourceURL))
	ok, err := c.repo.Has(ctx, contactID, hash[:])
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	data, err := c.fetch.Get(ctx, sourceURL, 30*time.Second)
	if err != nil {
		return err
	}
	return c.repo.Store(ctx, contactID, hash[:], sourceURL, data)
}
