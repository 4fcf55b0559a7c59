package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
)

// ContactRepo implements ContactRepository using PostgreSQL.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contact repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

const contactCols = `id, user_id, name, url, norm_url, addr, photo,
dfrn_id, issued_id, site_pubkey, pubkey, prvkey, duplex, aes_allow,
request, confirm, notify, poll,
blocked, pending, hidden, rel, network, forum, prv, created_at, updated_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.URL, &c.NormURL, &c.Addr, &c.PhotoURL,
		&c.DFRNID, &c.IssuedID, &c.SitePub, &c.PubKey, &c.PrvKey, &c.Duplex, &c.AESAllow,
		&c.Request, &c.Confirm, &c.Notify, &c.Poll,
		&c.Blocked, &c.Pending, &c.Hidden, &c.Rel, &c.Network, &c.Forum, &c.Prv,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &c, nil
}

// Create inserts a new contact record.
func (r *ContactRepo) Create(ctx context.Context, c *model.Contact) error {
	const q = `
INSERT INTO contacts (id, user_id, name, url, norm_url, addr, photo,
  dfrn_id, issued_id, site_pubkey, pubkey, prvkey, duplex, aes_allow,
  request, confirm, notify, poll,
  blocked, pending, hidden, rel, network, forum, prv)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`
	_, err := r.db.Pool.Exec(ctx, q,
		c.ID, c.UserID, c.Name, c.URL, c.NormURL, c.Addr, c.PhotoURL,
		c.DFRNID, c.IssuedID, c.SitePub, c.PubKey, c.PrvKey, c.Duplex, c.AESAllow,
		c.Request, c.Confirm, c.Notify, c.Poll,
		c.Blocked, c.Pending, c.Hidden, c.Rel, c.Network, c.Forum, c.Prv)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateID
	}
	return err
}

// GetByID selects a contact by primary key.
func (r *ContactRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Contact, error) {
	q := `SELECT ` + contactCols + ` FROM contacts WHERE id=$1`
	return scanContact(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByURL selects a contact by owner and normalized profile URL.
func (r *ContactRepo) GetByURL(ctx context.Context, userID uuid.UUID, normURL string) (*model.Contact, error) {
	q := `SELECT ` + contactCols + ` FROM contacts WHERE user_id=$1 AND norm_url=$2`
	return scanContact(r.db.Pool.QueryRow(ctx, q, userID, normURL))
}

// GetByIssuedID selects a contact by the id we issued to the remote side.
func (r *ContactRepo) GetByIssuedID(ctx context.Context, issuedID string) (*model.Contact, error) {
	q := `SELECT ` + contactCols + ` FROM contacts WHERE issued_id=$1`
	return scanContact(r.db.Pool.QueryRow(ctx, q, issuedID))
}

// GetForPoll resolves a contact from a direction-tagged poll id. Tagged
// ids only match duplex relationships; legacy ids match either column.
func (r *ContactRepo) GetForPoll(ctx context.Context, id model.DirectionalID) (*model.Contact, error) {
	var q string
	switch id.Direction {
	case model.DirectionInbound:
		q = `SELECT ` + contactCols + ` FROM contacts WHERE issued_id=$1 AND duplex`
	case model.DirectionOutbound:
		q = `SELECT ` + contactCols + ` FROM contacts WHERE dfrn_id=$1 AND duplex`
	default:
		q = `SELECT ` + contactCols + ` FROM contacts WHERE dfrn_id=$1 OR issued_id=$1`
	}
	return scanContact(r.db.Pool.QueryRow(ctx, q, id.ID))
}

// StampIssuedID replaces the contact's issued-id.
func (r *ContactRepo) StampIssuedID(ctx context.Context, id uuid.UUID, issuedID string) error {
	const q = `UPDATE contacts SET issued_id=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, issuedID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SaveKeypair persists a freshly minted relationship keypair.
func (r *ContactRepo) SaveKeypair(ctx context.Context, id uuid.UUID, pubKey, prvKey string) error {
	const q = `UPDATE contacts SET pubkey=$2, prvkey=$3, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, pubKey, prvKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SaveHandshake persists the counterpart's id and public key learned in
// confirm Branch B.
func (r *ContactRepo) SaveHandshake(ctx context.Context, id uuid.UUID, dfrnID, pubKey string, aesAllow bool) error {
	const q = `UPDATE contacts SET dfrn_id=$2, pubkey=$3, aes_allow=$4, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, dfrnID, pubKey, aesAllow)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateID
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DFRNIDExists reports whether dfrnID is bound to a different contact of
// the same user.
func (r *ContactRepo) DFRNIDExists(ctx context.Context, userID uuid.UUID, dfrnID string, exclude uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM contacts WHERE user_id=$1 AND dfrn_id=$2 AND id<>$3)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, dfrnID, exclude).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FinalizeRelation upgrades the relationship in a single UPDATE. This is
// the last mutation of a successful confirm; key material must already
// be persisted.
func (r *ContactRepo) FinalizeRelation(ctx context.Context, id uuid.UUID, rel model.Relation, duplex, hidden, forum, prv bool, network model.Network) error {
	const q = `
UPDATE contacts
SET rel=$2, duplex=$3, hidden=$4, forum=$5, prv=$6, network=$7,
    blocked=false, pending=false, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, rel, duplex, hidden, forum, prv, network)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SweepStale deletes abandoned blocked+pending contacts older than the
// given age. Attached intros are removed by cascade.
func (r *ContactRepo) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
DELETE FROM contacts
WHERE blocked AND pending AND rel=0 AND created_at < now() - $1::interval`
	tag, err := r.db.Pool.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
