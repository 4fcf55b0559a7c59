// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/model"
)

// ContactRepository provides access to contact records. Relationship
// finalization is a single UPDATE so a failed handshake can never leave
// a half-upgraded row.
type ContactRepository interface {
	// Create inserts a new contact record.
	Create(ctx context.Context, c *model.Contact) error

	// GetByID loads a contact by primary key.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Contact, error)

	// GetByURL loads a contact by owner and normalized profile URL.
	GetByURL(ctx context.Context, userID uuid.UUID, normURL string) (*model.Contact, error)

	// GetByIssuedID loads a contact by the id we issued to the remote side.
	GetByIssuedID(ctx context.Context, issuedID string) (*model.Contact, error)

	// GetForPoll resolves a contact from a direction-tagged poll id.
	GetForPoll(ctx context.Context, id model.DirectionalID) (*model.Contact, error)

	// StampIssuedID replaces the contact's issued-id (fresh request or
	// collision retry).
	StampIssuedID(ctx context.Context, id uuid.UUID, issuedID string) error

	// SaveKeypair persists a freshly minted relationship keypair.
	SaveKeypair(ctx context.Context, id uuid.UUID, pubKey, prvKey string) error

	// SaveHandshake persists the id and public key learned from the
	// counterpart during confirm Branch B.
	SaveHandshake(ctx context.Context, id uuid.UUID, dfrnID, pubKey string, aesAllow bool) error

	// DFRNIDExists reports whether the decrypted id is already bound to a
	// different contact of the same user (the birthday-paradox collision).
	DFRNIDExists(ctx context.Context, userID uuid.UUID, dfrnID string, exclude uuid.UUID) (bool, error)

	// FinalizeRelation upgrades the contact in one mutation: relation
	// kind, duplex, hidden, page flags, network, and clears
	// pending/blocked.
	FinalizeRelation(ctx context.Context, id uuid.UUID, rel model.Relation, duplex, hidden, forum, prv bool, network model.Network) error

	// SweepStale deletes blocked+pending contacts with no established
	// relationship older than the given age. Intros cascade.
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
