package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

func TestChallengeRepo_Consume_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	id := uuid.Must(uuid.NewV4())
	exp := time.Now().Add(time.Minute)
	mock.ExpectQuery(`DELETE FROM challenges\s+WHERE dfrn_id=\$1 AND challenge=\$2 AND expires_at > now\(\)`).
		WithArgs("remote-id", "nonce123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "dfrn_id", "challenge", "type", "last_update", "expires_at"}).
			AddRow(id, "remote-id", "nonce123", model.ChallengeData, "2026-01-01 00:00:00", exp))

	ch, err := r.Consume(context.Background(), "remote-id", "nonce123")
	require.NoError(t, err)
	require.Equal(t, "nonce123", ch.Nonce)
	require.Equal(t, model.ChallengeData, ch.Type)
}

func TestChallengeRepo_Consume_ReplayFails(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	// Second consume of the same nonce finds no row.
	mock.ExpectQuery(`DELETE FROM challenges`).
		WithArgs("remote-id", "nonce123").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Consume(context.Background(), "remote-id", "nonce123")
	require.ErrorIs(t, err, errs.ErrChallengeNotFound)
}

func TestChallengeRepo_Create_And_Purge(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewChallengeRepo(db)

	ch := &model.Challenge{
		ID:        uuid.Must(uuid.NewV4()),
		DFRNID:    "remote-id",
		Nonce:     "nonce123",
		Type:      model.ChallengeProfileCheck,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	mock.ExpectExec(`INSERT INTO challenges`).
		WithArgs(ch.ID, ch.DFRNID, ch.Nonce, ch.Type, ch.LastUpdate, ch.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), ch))

	now := time.Now()
	mock.ExpectExec(`DELETE FROM challenges WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	require.NoError(t, r.PurgeExpired(context.Background(), now))
}
