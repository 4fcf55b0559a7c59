package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dfrnproto/dfrnd/internal/crypto"
	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/session"
)

type pollFixture struct {
	contacts   *memContacts
	challenges *memChallenges
	sessions   *session.Manager
	svc        *PollService
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	f := &pollFixture{
		contacts:   newMemContacts(),
		challenges: newMemChallenges(),
		sessions:   session.New([]byte("test-sign-key")),
	}
	f.svc = NewPollService(f.contacts, f.challenges, f.sessions, nil, zap.NewNop())
	return f
}

// seedPollContact installs an established relationship holding the
// server-side half of the key material: prv for one-way proofs, the
// caller's pub for duplex ones.
func seedPollContact(t *testing.T, f *pollFixture, rel model.Relation, duplex bool, pub, prv string) *model.Contact {
	t.Helper()
	c := &model.Contact{
		ID:      uuid.Must(uuid.NewV4()),
		UserID:  uuid.Must(uuid.NewV4()),
		NormURL: "alice.example/profile/alice",
		DFRNID:  "poll-id-1",
		PubKey:  pub,
		PrvKey:  prv,
		Duplex:  duplex,
		Rel:     rel,
		Network: model.NetworkDFRN,
	}
	require.NoError(t, f.contacts.Create(context.Background(), c))
	return c
}

func TestPollRoundTrip(t *testing.T) {
	f := newPollFixture(t)
	pub, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedPollContact(t, f, model.RelationSharing, false, "", prv)

	reply, err := f.svc.IssueChallenge(context.Background(), "poll-id-1", model.ChallengeData, "2026-08-01 00:00:00")
	require.NoError(t, err)
	require.Equal(t, 0, reply.Status)
	require.Equal(t, DFRNVersion, reply.Version)
	require.NotEmpty(t, reply.Challenge)

	// The caller side holds the matching public key.
	caller := &model.Contact{PubKey: pub}
	echoID, nonce, err := AnswerChallenge(caller, reply)
	require.NoError(t, err)
	require.Equal(t, "poll-id-1", echoID)

	feed, err := f.svc.ServeData(context.Background(), echoID, nonce)
	require.NoError(t, err)
	require.Contains(t, string(feed), "<feed")

	// The nonce is single-use: a replay must fail.
	_, err = f.svc.ServeData(context.Background(), echoID, nonce)
	require.ErrorIs(t, err, errs.ErrChallengeNotFound)
}

func TestPollDuplexRoundTrip(t *testing.T) {
	f := newPollFixture(t)
	pub, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedPollContact(t, f, model.RelationFriend, true, pub, "")

	wireID := model.DirectionalID{Direction: model.DirectionOutbound, ID: "poll-id-1"}.String()
	reply, err := f.svc.IssueChallenge(context.Background(), wireID, model.ChallengeData, "")
	require.NoError(t, err)
	require.Equal(t, 0, reply.Status)

	caller := &model.Contact{Duplex: true, PrvKey: prv}
	echoID, nonce, err := AnswerChallenge(caller, reply)
	require.NoError(t, err)
	require.Equal(t, wireID, echoID)

	_, err = f.svc.ServeData(context.Background(), echoID, nonce)
	require.NoError(t, err)
}

func TestIssueChallengeUnknownID(t *testing.T) {
	f := newPollFixture(t)
	reply, err := f.svc.IssueChallenge(context.Background(), "no-such-id", model.ChallengeData, "")
	require.NoError(t, err)
	require.Equal(t, 1, reply.Status)
	require.Empty(t, reply.Challenge)
}

func TestIssueChallengeTaggedIDRequiresDuplex(t *testing.T) {
	f := newPollFixture(t)
	_, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedPollContact(t, f, model.RelationSharing, false, "", prv)

	// A direction-tagged id only matches duplex relationships.
	reply, err := f.svc.IssueChallenge(context.Background(), "1:poll-id-1", model.ChallengeData, "")
	require.NoError(t, err)
	require.Equal(t, 1, reply.Status)
}

func TestIssueChallengeWithoutKeyMaterial(t *testing.T) {
	f := newPollFixture(t)
	seedPollContact(t, f, model.RelationSharing, false, "", "")

	reply, err := f.svc.IssueChallenge(context.Background(), "poll-id-1", model.ChallengeData, "")
	require.NoError(t, err)
	require.Equal(t, 1, reply.Status)
}

func TestChallengeExpiry(t *testing.T) {
	f := newPollFixture(t)
	require.NoError(t, f.challenges.Create(context.Background(), &model.Challenge{
		ID:        uuid.Must(uuid.NewV4()),
		DFRNID:    "poll-id-1",
		Nonce:     "stale",
		Type:      model.ChallengeData,
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, err := f.svc.ServeData(context.Background(), "poll-id-1", "stale")
	require.ErrorIs(t, err, errs.ErrChallengeNotFound)
}

func TestVerifyProfileCheck(t *testing.T) {
	f := newPollFixture(t)
	pub, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedPollContact(t, f, model.RelationFriend, true, pub, "")

	wireID := model.DirectionalID{Direction: model.DirectionOutbound, ID: "poll-id-1"}.String()
	reply, err := f.svc.IssueChallenge(context.Background(), wireID, model.ChallengeProfileCheck, "")
	require.NoError(t, err)

	caller := &model.Contact{Duplex: true, PrvKey: prv}
	echoID, nonce, err := AnswerChallenge(caller, reply)
	require.NoError(t, err)

	grant, err := f.svc.VerifyProfileCheck(context.Background(), echoID, nonce, "sec-token")
	require.NoError(t, err)
	require.Equal(t, session.PermReadWrite, grant.Perm)
	require.Equal(t, "sec-token", grant.Sec)

	// The issued token must verify and grant access as the proved contact.
	contactID, perm, err := f.sessions.VerifyVisitor(grant.Token)
	require.NoError(t, err)
	require.Equal(t, grant.ContactID, contactID)
	require.Equal(t, session.PermReadWrite, perm)
}

func TestVerifyProfileCheckReadOnlyForSharing(t *testing.T) {
	f := newPollFixture(t)
	_, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedPollContact(t, f, model.RelationSharing, false, "", prv)

	reply, err := f.svc.IssueChallenge(context.Background(), "poll-id-1", model.ChallengeProfile, "")
	require.NoError(t, err)

	pub, err := publicHalf(prv)
	require.NoError(t, err)
	caller := &model.Contact{PubKey: pub}
	echoID, nonce, err := AnswerChallenge(caller, reply)
	require.NoError(t, err)

	grant, err := f.svc.VerifyProfileCheck(context.Background(), echoID, nonce, "")
	require.NoError(t, err)
	require.Equal(t, session.PermRead, grant.Perm)
}

// seedUnconfirmedContact installs a blocked+pending contact that already
// holds a relationship private key, as an aborted confirm leaves it.
func seedUnconfirmedContact(t *testing.T, f *pollFixture, prv string) *model.Contact {
	t.Helper()
	c := &model.Contact{
		ID:      uuid.Must(uuid.NewV4()),
		UserID:  uuid.Must(uuid.NewV4()),
		NormURL: "alice.example/profile/alice",
		DFRNID:  "poll-id-1",
		PrvKey:  prv,
		Blocked: true,
		Pending: true,
		Rel:     model.RelationNone,
		Network: model.NetworkDFRN,
	}
	require.NoError(t, f.contacts.Create(context.Background(), c))
	return c
}

func TestIssueChallengeRejectsUnconfirmed(t *testing.T) {
	f := newPollFixture(t)
	_, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedUnconfirmedContact(t, f, prv)

	reply, err := f.svc.IssueChallenge(context.Background(), "poll-id-1", model.ChallengeData, "")
	require.NoError(t, err)
	require.Equal(t, 1, reply.Status)
	require.Empty(t, reply.Challenge)
}

func TestServeDataRejectsUnconfirmed(t *testing.T) {
	f := newPollFixture(t)
	_, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedUnconfirmedContact(t, f, prv)

	// Even a contact holding a live nonce gets no content before the
	// handshake completed.
	require.NoError(t, f.challenges.Create(context.Background(), &model.Challenge{
		ID:        uuid.Must(uuid.NewV4()),
		DFRNID:    "poll-id-1",
		Nonce:     "live",
		Type:      model.ChallengeData,
		ExpiresAt: time.Now().Add(ChallengeTTL),
	}))

	_, err = f.svc.ServeData(context.Background(), "poll-id-1", "live")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestVerifyProfileCheckRejectsPending(t *testing.T) {
	f := newPollFixture(t)
	_, prv, err := crypto.GenerateKeypair(testKeyBits)
	require.NoError(t, err)
	seedUnconfirmedContact(t, f, prv)

	require.NoError(t, f.challenges.Create(context.Background(), &model.Challenge{
		ID:        uuid.Must(uuid.NewV4()),
		DFRNID:    "poll-id-1",
		Nonce:     "live",
		Type:      model.ChallengeProfile,
		ExpiresAt: time.Now().Add(ChallengeTTL),
	}))

	_, err = f.svc.VerifyProfileCheck(context.Background(), "poll-id-1", "live", "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

// publicHalf derives the PEM public key from a PEM private key.
func publicHalf(prvPEM string) (string, error) {
	prv, err := crypto.ParsePrivateKey(prvPEM)
	if err != nil {
		return "", err
	}
	return crypto.EncodePublicKey(&prv.PublicKey)
}
