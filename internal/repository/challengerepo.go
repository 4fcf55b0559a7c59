package repository

import (
	"context"
	"time"

	"github.com/dfrnproto/dfrnd/internal/model"
)

// ChallengeRepository stores in-flight poll challenges. Challenges are
// single-use: Consume atomically deletes the matched row, so two
// concurrent responses cannot both observe it.
type ChallengeRepository interface {
	// Create inserts a challenge with its expiry.
	Create(ctx context.Context, ch *model.Challenge) error

	// Consume deletes and returns the challenge matching (dfrnID, nonce).
	// Returns errs.ErrChallengeNotFound if expired, replayed, or unknown.
	Consume(ctx context.Context, dfrnID, nonce string) (*model.Challenge, error)

	// PurgeExpired removes challenges past their expiry.
	PurgeExpired(ctx context.Context, now time.Time) error
}
