package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// AvatarRepository stores locally cached copies of contact avatars,
// keyed by (contact, source URL hash) so repeat fetches are idempotent.
type AvatarRepository interface {
	// Store saves a fetched avatar; a second call with the same key is a no-op.
	Store(ctx context.Context, contactID uuid.UUID, urlHash []byte, sourceURL string, data []byte) error

	// Has reports whether a copy for (contact, url hash) already exists.
	Has(ctx context.Context, contactID uuid.UUID, urlHash []byte) (bool, error)
}
