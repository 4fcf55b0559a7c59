package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

// ChallengeRepo implements ChallengeRepository using PostgreSQL.
type ChallengeRepo struct{ db *DB }

// NewChallengeRepo constructs a challenge repository.
func NewChallengeRepo(db *DB) *ChallengeRepo { return &ChallengeRepo{db: db} }

// Create inserts a challenge with its expiry.
func (r *ChallengeRepo) Create(ctx context.Context, ch *model.Challenge) error {
	const q = `
INSERT INTO challenges (id, dfrn_id, challenge, type, last_update, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Pool.Exec(ctx, q, ch.ID, ch.DFRNID, ch.Nonce, ch.Type, ch.LastUpdate, ch.ExpiresAt)
	return err
}

// Consume deletes and returns the matching unexpired challenge. The
// DELETE ... RETURNING makes the read-then-delete atomic, so a replayed
// response cannot observe the row a second time.
func (r *ChallengeRepo) Consume(ctx context.Context, dfrnID, nonce string) (*model.Challenge, error) {
	const q = `
DELETE FROM challenges
WHERE dfrn_id=$1 AND challenge=$2 AND expires_at > now()
RETURNING id, dfrn_id, challenge, type, last_update, expires_at`
	var ch model.Challenge
	err := r.db.Pool.QueryRow(ctx, q, dfrnID, nonce).Scan(
		&ch.ID, &ch.DFRNID, &ch.Nonce, &ch.Type, &ch.LastUpdate, &ch.ExpiresAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrChallengeNotFound
	}
	return &ch, nil
}

// PurgeExpired removes challenges past their expiry.
func (r *ChallengeRepo) PurgeExpired(ctx context.Context, now time.Time) error {
	const q = `DELETE FROM challenges WHERE expires_at <= $1`
	_, err := r.db.Pool.Exec(ctx, q, now)
	return err
}
