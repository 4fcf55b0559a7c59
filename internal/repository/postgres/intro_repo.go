package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

// IntroRepo implements IntroRepository using PostgreSQL.
type IntroRepo struct{ db *DB }

// NewIntroRepo constructs an intro repository.
func NewIntroRepo(db *DB) *IntroRepo { return &IntroRepo{db: db} }

// Create inserts a new intro.
func (r *IntroRepo) Create(ctx context.Context, in *model.Intro) error {
	const q = `
INSERT INTO intros (id, user_id, contact_id, fid, note, hash, blocked)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	var fid any
	if in.FID != uuid.Nil {
		fid = in.FID
	}
	_, err := r.db.Pool.Exec(ctx, q, in.ID, in.UserID, in.ContactID, fid, in.Note, in.Hash, in.Blocked)
	return err
}

// GetByContact loads the intro attached to a contact record.
func (r *IntroRepo) GetByContact(ctx context.Context, contactID uuid.UUID) (*model.Intro, error) {
	const q = `
SELECT id, user_id, contact_id, COALESCE(fid, '00000000-0000-0000-0000-000000000000'::uuid), note, hash, blocked, created_at
FROM intros WHERE contact_id=$1`
	var in model.Intro
	err := r.db.Pool.QueryRow(ctx, q, contactID).Scan(
		&in.ID, &in.UserID, &in.ContactID, &in.FID, &in.Note, &in.Hash, &in.Blocked, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &in, nil
}

// UnblockByHash reveals the intro matching the confirm key.
func (r *IntroRepo) UnblockByHash(ctx context.Context, hash string) error {
	const q = `UPDATE intros SET blocked=false WHERE hash=$1`
	tag, err := r.db.Pool.Exec(ctx, q, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteByContact removes the intro for an approved or discarded request.
func (r *IntroRepo) DeleteByContact(ctx context.Context, contactID uuid.UUID) error {
	const q = `DELETE FROM intros WHERE contact_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, contactID)
	return err
}
