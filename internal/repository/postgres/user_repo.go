package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

// UserRepo implements UserStore using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, nickname, name, url, photo, page, notify_intro, pubkey, prvkey, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Nickname, &u.Name, &u.URL, &u.Photo, &u.Page,
		&u.NotifyIntro, &u.PubKey, &u.PrvKey, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// GetByNickname selects a user by nickname.
func (r *UserRepo) GetByNickname(ctx context.Context, nickname string) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE nickname=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, nickname))
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}
