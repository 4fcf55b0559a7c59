package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/model"
)

// IntroRepository manages pending friend-request notifications.
type IntroRepository interface {
	// Create inserts a new intro.
	Create(ctx context.Context, in *model.Intro) error

	// GetByContact loads the intro attached to a contact record.
	GetByContact(ctx context.Context, contactID uuid.UUID) (*model.Intro, error)

	// UnblockByHash reveals the intro once the remote side's
	// loop-closing callback carrying the confirm key arrives.
	UnblockByHash(ctx context.Context, hash string) error

	// DeleteByContact removes the intro when its request is approved or
	// discarded.
	DeleteByContact(ctx context.Context, contactID uuid.UUID) error
}
