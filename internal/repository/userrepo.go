package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/model"
)

// UserStore resolves local profile owners. Account management is an
// external concern; the handshake only reads.
type UserStore interface {
	// GetByNickname loads the owner of /dfrn_request/:nickname style URLs.
	GetByNickname(ctx context.Context, nickname string) (*model.User, error)

	// GetByID loads a user by primary key.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}
