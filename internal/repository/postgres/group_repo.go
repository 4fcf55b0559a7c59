package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// defaultGroupName is the group new relationships land in.
const defaultGroupName = "Friends"

// GroupRepo implements GroupRepository using PostgreSQL.
type GroupRepo struct{ db *DB }

// NewGroupRepo constructs a group repository.
func NewGroupRepo(db *DB) *GroupRepo { return &GroupRepo{db: db} }

// AddToDefault enrolls the contact into the user's default group. Both
// statements are idempotent, so a re-run of a confirm changes nothing.
func (r *GroupRepo) AddToDefault(ctx context.Context, userID, contactID uuid.UUID) error {
	const ensure = `
INSERT INTO groups (id, user_id, name) VALUES ($1,$2,$3)
ON CONFLICT (user_id, name) DO NOTHING`
	if _, err := r.db.Pool.Exec(ctx, ensure, uuid.Must(uuid.NewV4()), userID, defaultGroupName); err != nil {
		return err
	}
	const enroll = `
INSERT INTO group_members (group_id, contact_id)
SELECT id, $2 FROM groups WHERE user_id=$1 AND name=$3
ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, enroll, userID, contactID, defaultGroupName)
	return err
}
