package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// GroupRepository manages contact group membership. Every user owns a
// default group that freshly confirmed relationships are enrolled into.
type GroupRepository interface {
	// AddToDefault enrolls the contact into the user's default group,
	// creating the group on first use. Repeat enrollment is a no-op.
	AddToDefault(ctx context.Context, userID, contactID uuid.UUID) error
}
