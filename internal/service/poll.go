package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/dfrnproto/dfrnd/internal/crypto"
	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/repository"
	"github.com/dfrnproto/dfrnd/internal/session"
)

// ChallengeTTL bounds how long an issued poll challenge stays
// answerable. One round-trip between two servers fits comfortably;
// anything slower is indistinguishable from a replay attempt.
const ChallengeTTL = 60 * time.Second

// FeedSource produces the content document served once a data poll is
// authenticated. Content syndication itself lives outside this
// subsystem.
type FeedSource interface {
	Feed(ctx context.Context, contactID uuid.UUID, lastUpdate string) ([]byte, error)
}

// NullFeed serves an empty feed document, for deployments that only use
// the handshake and profile-check portions of the protocol.
type NullFeed struct{}

// Feed returns an empty atom envelope.
func (NullFeed) Feed(context.Context, uuid.UUID, string) ([]byte, error) {
	return []byte(`<?xml version="1.0" encoding="utf-8"?><feed xmlns="http://www.w3.org/2005/Atom"/>`), nil
}

// PollService implements the Poll/Challenge Phase: proving an already
// established relationship on every subsequent contact, without ever
// re-sending key material.
type PollService struct {
	contacts   repository.ContactRepository
	challenges repository.ChallengeRepository
	sessions   *session.Manager
	feed       FeedSource
	log        *zap.Logger
}

// NewPollService constructs the poll-phase service.
func NewPollService(
	contacts repository.ContactRepository,
	challenges repository.ChallengeRepository,
	sessions *session.Manager,
	feed FeedSource,
	log *zap.Logger,
) *PollService {
	if feed == nil {
		feed = NullFeed{}
	}
	return &PollService{
		contacts: contacts, challenges: challenges,
		sessions: sessions, feed: feed, log: log,
	}
}

// IssueChallenge answers the first half of a poll round-trip: the
// caller presents a direction-tagged id, we answer with a nonce and the
// id itself, both encrypted so that only the contact holding the right
// key material can read them. Protocol failures surface as a status-1
// reply, never as a Go error, so the wire always gets a document.
func (s *PollService) IssueChallenge(ctx context.Context, wireID string, typ model.ChallengeType, lastUpdate string) (*PollReply, error) {
	if err := s.challenges.PurgeExpired(ctx, time.Now()); err != nil {
		return nil, err
	}

	reply := &PollReply{Version: DFRNVersion}
	dirID := model.ParseDirectionalID(wireID)
	contact, err := s.contacts.GetForPoll(ctx, dirID)
	if err != nil {
		reply.Status = 1
		return reply, nil
	}
	// No content flows until the handshake completed. A pending contact
	// may already hold key material from an aborted confirm.
	if contact.Blocked || !contact.Established() {
		reply.Status = 1
		return reply, nil
	}

	nonce, err := crypto.RandomHex(16)
	if err != nil {
		return nil, err
	}

	// Duplex relationships hold the caller's public key, so the nonce
	// travels public-encrypted and only the caller's private key opens
	// it. One-way relationships prove our side instead: private-encrypt
	// under our relationship key, verifiable with the public half the
	// caller received at confirm time.
	var sealedNonce, sealedID []byte
	switch {
	case contact.Duplex && contact.PubKey != "":
		if sealedNonce, err = crypto.EncryptWithPublicKey([]byte(nonce), contact.PubKey); err == nil {
			sealedID, err = crypto.EncryptWithPublicKey([]byte(wireID), contact.PubKey)
		}
	case contact.PrvKey != "":
		if sealedNonce, err = crypto.EncryptWithPrivateKey([]byte(nonce), contact.PrvKey); err == nil {
			sealedID, err = crypto.EncryptWithPrivateKey([]byte(wireID), contact.PrvKey)
		}
	default:
		reply.Status = 1
		return reply, nil
	}
	if err != nil {
		reply.Status = 1
		return reply, nil
	}

	ch := &model.Challenge{
		ID:         uuid.Must(uuid.NewV4()),
		DFRNID:     wireID,
		Nonce:      nonce,
		Type:       typ,
		LastUpdate: lastUpdate,
		ExpiresAt:  time.Now().Add(ChallengeTTL),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		return nil, err
	}

	reply.DFRNID = crypto.EncodeHex(sealedID)
	reply.Challenge = crypto.EncodeHex(sealedNonce)
	return reply, nil
}

// AnswerChallenge is the caller side of the round-trip: decrypt the
// nonce and echoed id from a counterpart's challenge reply using the
// key material of the relationship being proved.
func AnswerChallenge(contact *model.Contact, reply *PollReply) (dfrnID, nonce string, err error) {
	rawID, err := crypto.DecodeHex(reply.DFRNID)
	if err != nil {
		return "", "", err
	}
	rawNonce, err := crypto.DecodeHex(reply.Challenge)
	if err != nil {
		return "", "", err
	}

	var idBytes, nonceBytes []byte
	if contact.Duplex && contact.PrvKey != "" {
		if idBytes, err = crypto.DecryptWithPrivateKey(rawID, contact.PrvKey); err == nil {
			nonceBytes, err = crypto.DecryptWithPrivateKey(rawNonce, contact.PrvKey)
		}
	} else {
		if idBytes, err = crypto.DecryptWithPublicKey(rawID, contact.PubKey); err == nil {
			nonceBytes, err = crypto.DecryptWithPublicKey(rawNonce, contact.PubKey)
		}
	}
	if err != nil {
		return "", "", err
	}
	return string(idBytes), string(nonceBytes), nil
}

// ServeData answers the second half of a data poll: the caller echoes
// the decrypted nonce, which consumes the challenge atomically, and the
// feed since the recorded cursor comes back. A replayed or expired
// nonce fails with errs.ErrChallengeNotFound.
func (s *PollService) ServeData(ctx context.Context, wireID, nonce string) ([]byte, error) {
	ch, err := s.challenges.Consume(ctx, wireID, nonce)
	if err != nil {
		return nil, err
	}
	contact, err := s.contacts.GetForPoll(ctx, model.ParseDirectionalID(wireID))
	if err != nil {
		return nil, err
	}
	if contact.Blocked || !contact.Established() {
		return nil, errs.ErrUnauthorized
	}
	return s.feed.Feed(ctx, contact.ID, ch.LastUpdate)
}

// VisitorGrant is the session opened by a successful profile check.
type VisitorGrant struct {
	ContactID uuid.UUID
	Perm      session.Perm
	Token     string
	ExpiresAt time.Time
	Sec       string
}

// VerifyProfileCheck answers the second half of a profile or
// profile-check poll: consume the challenge, then open a visitor
// session scoped to the proved contact. Full friends browse with write
// permissions; every other established relation is read-only.
func (s *PollService) VerifyProfileCheck(ctx context.Context, wireID, nonce, sec string) (*VisitorGrant, error) {
	if _, err := s.challenges.Consume(ctx, wireID, nonce); err != nil {
		return nil, err
	}
	contact, err := s.contacts.GetForPoll(ctx, model.ParseDirectionalID(wireID))
	if err != nil {
		return nil, err
	}
	if contact.Blocked || !contact.Established() {
		return nil, errs.ErrUnauthorized
	}

	perm := session.PermRead
	if contact.Rel == model.RelationFriend {
		perm = session.PermReadWrite
	}
	token, exp, err := s.sessions.IssueVisitor(contact.ID, perm)
	if err != nil {
		return nil, err
	}
	s.log.Info("visitor session opened",
		zap.String("contact_id", contact.ID.String()),
		zap.String("perm", string(perm)))
	return &VisitorGrant{
		ContactID: contact.ID,
		Perm:      perm,
		Token:     token,
		ExpiresAt: exp,
		Sec:       sec,
	}, nil
}
