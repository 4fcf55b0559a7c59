package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// AvatarRepo implements AvatarRepository using PostgreSQL.
type AvatarRepo struct{ db *DB }

// NewAvatarRepo constructs an avatar repository.
func NewAvatarRepo(db *DB) *AvatarRepo { return &AvatarRepo{db: db} }

// Store saves a fetched avatar. ON CONFLICT DO NOTHING makes a repeat
// fetch of the same (contact, url) a no-op.
func (r *AvatarRepo) Store(ctx context.Context, contactID uuid.UUID, urlHash []byte, sourceURL string, data []byte) error {
	const q = `
INSERT INTO avatars (contact_id, url_hash, source_url, data)
VALUES ($1,$2,$3,$4)
ON CONFLICT (contact_id, url_hash) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, contactID, urlHash, sourceURL, data)
	return err
}

// Has reports whether a stored copy exists for (contact, url hash).
func (r *AvatarRepo) Has(ctx context.Context, contactID uuid.UUID, urlHash []byte) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM avatars WHERE contact_id=$1 AND url_hash=$2)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, contactID, urlHash).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
