package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/dfrnproto/dfrnd/internal/crypto"
	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/httpclient"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/notify"
	"github.com/dfrnproto/dfrnd/internal/probe"
	"github.com/dfrnproto/dfrnd/internal/repository"
)

// AvatarFetcher caches a contact's avatar. Failures are cosmetic and
// never abort a handshake.
type AvatarFetcher interface {
	Fetch(ctx context.Context, contactID uuid.UUID, sourceURL string) error
}

// ConfirmService implements the Confirm Phase. Approve is the approver
// branch (the local user accepted an intro and this node initiates the
// handshake POST); Handshake is the receiver branch (a counterpart's
// handshake POST landing here).
type ConfirmService struct {
	contacts repository.ContactRepository
	intros   repository.IntroRepository
	users    repository.UserStore
	groups   repository.GroupRepository
	avatars  AvatarFetcher
	client   HTTPDoer
	notifier notify.Notifier
	keyBits  int
	log      *zap.Logger
}

// NewConfirmService constructs the confirm-phase service. keyBits <= 0
// selects the recommended modulus size.
func NewConfirmService(
	contacts repository.ContactRepository,
	intros repository.IntroRepository,
	users repository.UserStore,
	groups repository.GroupRepository,
	avatars AvatarFetcher,
	client HTTPDoer,
	notifier notify.Notifier,
	keyBits int,
	log *zap.Logger,
) *ConfirmService {
	if keyBits <= 0 {
		keyBits = crypto.RecommendedBits
	}
	return &ConfirmService{
		contacts: contacts, intros: intros, users: users, groups: groups,
		avatars: avatars, client: client, notifier: notifier,
		keyBits: keyBits, log: log,
	}
}

// ApproveParams selects the intro being approved, by contact id or by
// the issued-id we handed the remote side. Handsfree, when set, carries
// the auto-approval context and overrides the explicit fields.
type ApproveParams struct {
	UserID    uuid.UUID
	ContactID uuid.UUID
	IssuedID  string
	Duplex    bool
	Hidden    bool

	Handsfree *model.Handsfree
}

// collisionRetries bounds how many fresh issued-ids Approve will try
// when the counterpart reports a duplicate.
const collisionRetries = 1

// Approve runs the approver branch: mint a relationship keypair, prove
// possession of our key to the counterpart, deliver the new public key,
// and finalize the local relation according to its answer. The contact
// row is upgraded only after the counterpart reported success, so an
// aborted exchange leaves the request pending rather than half-linked.
func (s *ConfirmService) Approve(ctx context.Context, p ApproveParams) (*ConfirmOutcome, error) {
	if p.Handsfree != nil {
		p.UserID = p.Handsfree.UserID
		p.ContactID = p.Handsfree.ContactID
		p.Duplex = p.Handsfree.Duplex
		p.Hidden = p.Handsfree.Hidden
	}

	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	contact, err := s.resolveContact(ctx, p)
	if err != nil {
		return nil, err
	}
	if contact.UserID != user.ID {
		return nil, errs.ErrNotFound
	}
	if contact.Network != model.NetworkDFRN {
		// Feed-only contacts have no counterpart to handshake with.
		return s.finalizeLocal(ctx, user, contact, p.Duplex, p.Hidden)
	}

	pubPEM, prvPEM, err := crypto.GenerateKeypair(s.keyBits)
	if err != nil {
		return nil, err
	}
	if err := s.contacts.SaveKeypair(ctx, contact.ID, pubPEM, prvPEM); err != nil {
		return nil, err
	}

	outcome := &ConfirmOutcome{ContactID: contact.ID}
	issuedID := contact.IssuedID
	for attempt := 0; ; attempt++ {
		form, err := s.buildApprovePayload(user, contact, issuedID, pubPEM, p.Duplex)
		if err != nil {
			return nil, err
		}
		body, err := s.client.PostForm(ctx, contact.Confirm, form, httpclient.ConfirmTimeout)
		if err != nil {
			if errors.Is(err, errs.ErrTimeout) {
				outcome.Status, outcome.Message = StatusTransient, "counterpart timed out"
				return outcome, nil
			}
			return nil, err
		}
		reply, err := ParseConfirmReply(body)
		if err != nil {
			outcome.Status, outcome.Message = StatusFatal, "unparseable confirm reply"
			return outcome, nil
		}
		outcome.Status, outcome.Message = ConfirmStatus(reply.Status), reply.Message

		if outcome.Status != StatusCollision || attempt >= collisionRetries {
			break
		}
		// Duplicate id on the far side. Mint a fresh one and try again.
		issuedID, err = crypto.RandomHex(16)
		if err != nil {
			return nil, err
		}
		if err := s.contacts.StampIssuedID(ctx, contact.ID, issuedID); err != nil {
			return nil, err
		}
		s.log.Info("issued-id collision, retrying with fresh id",
			zap.String("contact_id", contact.ID.String()))
	}
	if outcome.Status != StatusSuccess {
		return outcome, nil
	}

	if err := s.avatars.Fetch(ctx, contact.ID, contact.PhotoURL); err != nil {
		s.log.Warn("avatar fetch failed", zap.Error(err))
	}

	fin, err := s.finalizeLocal(ctx, user, contact, p.Duplex, p.Hidden)
	if err != nil {
		return nil, err
	}
	outcome.NewRel = fin.NewRel
	return outcome, nil
}

// resolveContact locates the contact being approved: by primary key
// when the caller has one, by issued-id otherwise.
func (s *ConfirmService) resolveContact(ctx context.Context, p ApproveParams) (*model.Contact, error) {
	switch {
	case p.ContactID != uuid.Nil:
		return s.contacts.GetByID(ctx, p.ContactID)
	case p.IssuedID != "":
		return s.contacts.GetByIssuedID(ctx, p.IssuedID)
	default:
		return nil, errs.ErrNotFound
	}
}

// finalizeLocal upgrades the local relation, enrolls the contact into
// the owner's default group, clears the intro, and notifies the owner.
// Shared by the DFRN success path and feed-only approvals, which skip
// the wire exchange entirely. The contact keeps its network: a feed
// subscription stays a feed subscription.
func (s *ConfirmService) finalizeLocal(ctx context.Context, user *model.User, contact *model.Contact, duplex, hidden bool) (*ConfirmOutcome, error) {
	rel, newDuplex := NextRelation(BranchApprover, contact.Rel, duplex)
	if err := s.contacts.FinalizeRelation(ctx, contact.ID, rel, newDuplex, hidden, contact.Forum, contact.Prv, contact.Network); err != nil {
		return nil, err
	}
	if err := s.groups.AddToDefault(ctx, user.ID, contact.ID); err != nil {
		s.log.Warn("default group enrollment failed", zap.Error(err))
	}
	if err := s.intros.DeleteByContact(ctx, contact.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindConfirmCompleted,
		UserID:    user.ID,
		ContactID: contact.ID,
		Message:   fmt.Sprintf("%s is now %s", contact.URL, rel),
	})
	return &ConfirmOutcome{Status: StatusSuccess, ContactID: contact.ID, NewRel: rel}, nil
}

// buildApprovePayload assembles the handshake POST form. The issued-id
// is encrypted under the user's own private key so the counterpart can
// verify it with the public key it scraped from our profile page; our
// profile URL travels under the counterpart's site key so only that
// node can read it.
func (s *ConfirmService) buildApprovePayload(user *model.User, contact *model.Contact, issuedID, pubPEM string, duplex bool) (url.Values, error) {
	sealed, err := crypto.EncryptWithPrivateKey([]byte(issuedID), user.PrvKey)
	if err != nil {
		return nil, err
	}
	srcURL, err := crypto.EncryptWithPublicKey([]byte(user.URL), contact.SitePub)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("dfrn_id", crypto.EncodeHex(sealed))
	form.Set("dfrn_version", DFRNVersion)
	form.Set("source_url", crypto.EncodeHex(srcURL))
	form.Set("node", nickFromAddr(contact.Addr))
	form.Set("duplex", boolFlag(duplex))
	if user.Page == model.PageCommunity {
		form.Set("page", "1")
	}

	// RSA blocks cap out well below a 4096-bit PEM key, so the new public
	// key travels under a fresh symmetric key when the peer allows it.
	if contact.AESAllow {
		aesKey, err := crypto.NewSymmetricKey()
		if err != nil {
			return nil, err
		}
		wrapped, err := crypto.SymmetricEncrypt(aesKey, []byte(pubPEM))
		if err != nil {
			return nil, err
		}
		sealedKey, err := crypto.EncryptWithPublicKey(aesKey, contact.SitePub)
		if err != nil {
			return nil, err
		}
		form.Set("public_key", crypto.EncodeHex(wrapped))
		form.Set("aes_key", crypto.EncodeHex(sealedKey))
	} else {
		form.Set("public_key", pubPEM)
	}
	return form, nil
}

// HandshakeParams is the decoded handshake POST from a counterpart.
type HandshakeParams struct {
	Node         string // target user's nickname on this node
	DFRNIDHex    string
	SourceURLHex string
	PublicKey    string
	AESKeyHex    string
	Duplex       bool
	Page         int
}

// Handshake runs the receiver branch. It never returns a Go error:
// every failure maps to a wire status so the counterpart always gets a
// well-formed reply. Transient storage failures report status 2,
// inviting a retry; everything unverifiable is fatal.
func (s *ConfirmService) Handshake(ctx context.Context, p HandshakeParams) *ConfirmOutcome {
	user, err := s.users.GetByNickname(ctx, p.Node)
	if err != nil {
		return s.failure(err, "no such user")
	}

	rawSrc, err := crypto.DecodeHex(p.SourceURLHex)
	if err != nil {
		return &ConfirmOutcome{Status: StatusFatal, Message: "malformed source_url"}
	}
	srcBytes, err := crypto.DecryptWithPrivateKey(rawSrc, user.PrvKey)
	if err != nil || len(srcBytes) == 0 {
		return &ConfirmOutcome{Status: StatusFatal, Message: "source_url rejected"}
	}
	sourceURL := string(srcBytes)

	contact, err := s.contacts.GetByURL(ctx, user.ID, probe.NormalizeURL(sourceURL))
	if err != nil {
		return s.failure(err, "contact not found")
	}

	rawID, err := crypto.DecodeHex(p.DFRNIDHex)
	if err != nil {
		return &ConfirmOutcome{Status: StatusFatal, Message: "malformed dfrn_id"}
	}
	idBytes, err := crypto.DecryptWithPublicKey(rawID, contact.SitePub)
	if err != nil {
		return &ConfirmOutcome{Status: StatusFatal, Message: "dfrn_id verification failed"}
	}
	dfrnID := strings.TrimSpace(string(idBytes))
	if dfrnID == "" {
		return &ConfirmOutcome{Status: StatusFatal, Message: "empty dfrn_id"}
	}

	dup, err := s.contacts.DFRNIDExists(ctx, user.ID, dfrnID, contact.ID)
	if err != nil {
		return s.failure(err, "id lookup failed")
	}
	if dup {
		return &ConfirmOutcome{Status: StatusCollision, Message: "duplicate id", ContactID: contact.ID}
	}

	pubPEM := p.PublicKey
	aesAllow := p.AESKeyHex != ""
	if aesAllow {
		pubPEM, err = s.unwrapPublicKey(user, p.PublicKey, p.AESKeyHex)
		if err != nil {
			return &ConfirmOutcome{Status: StatusFatal, Message: "key exchange failed"}
		}
	}
	if _, err := crypto.ParsePublicKey(pubPEM); err != nil {
		return &ConfirmOutcome{Status: StatusFatal, Message: "invalid public key"}
	}

	if err := s.contacts.SaveHandshake(ctx, contact.ID, dfrnID, pubPEM, aesAllow); err != nil {
		return s.failure(err, "storage failure")
	}

	if err := s.avatars.Fetch(ctx, contact.ID, contact.PhotoURL); err != nil {
		s.log.Warn("avatar fetch failed", zap.Error(err))
	}

	rel, newDuplex := NextRelation(BranchReceiver, contact.Rel, p.Duplex)
	forum := p.Page == 1
	prv := p.Page == 2
	if err := s.contacts.FinalizeRelation(ctx, contact.ID, rel, newDuplex, contact.Hidden, forum, prv, model.NetworkDFRN); err != nil {
		return s.failure(err, "storage failure")
	}
	if err := s.groups.AddToDefault(ctx, user.ID, contact.ID); err != nil {
		s.log.Warn("default group enrollment failed", zap.Error(err))
	}
	if err := s.intros.DeleteByContact(ctx, contact.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return s.failure(err, "storage failure")
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindConfirmCompleted,
		UserID:    user.ID,
		ContactID: contact.ID,
		Message:   fmt.Sprintf("%s is now %s", contact.URL, rel),
	})
	return &ConfirmOutcome{Status: StatusSuccess, ContactID: contact.ID, NewRel: rel}
}

// unwrapPublicKey undoes the symmetric wrapping of buildApprovePayload
// from the other side of the wire.
func (s *ConfirmService) unwrapPublicKey(user *model.User, pubHex, aesKeyHex string) (string, error) {
	sealedKey, err := crypto.DecodeHex(aesKeyHex)
	if err != nil {
		return "", err
	}
	aesKey, err := crypto.DecryptWithPrivateKey(sealedKey, user.PrvKey)
	if err != nil {
		return "", err
	}
	wrapped, err := crypto.DecodeHex(pubHex)
	if err != nil {
		return "", err
	}
	pub, err := crypto.SymmetricDecrypt(aesKey, wrapped)
	if err != nil {
		return "", err
	}
	return string(pub), nil
}

// failure maps an internal error to a wire status: unknown records are
// fatal, anything else is assumed transient and worth a retry.
func (s *ConfirmService) failure(err error, msg string) *ConfirmOutcome {
	if errors.Is(err, errs.ErrNotFound) {
		return &ConfirmOutcome{Status: StatusFatal, Message: msg}
	}
	s.log.Error("handshake failed", zap.String("reason", msg), zap.Error(err))
	return &ConfirmOutcome{Status: StatusTransient, Message: msg}
}

func nickFromAddr(addr string) string {
	if i := strings.IndexByte(addr, '@'); i > 0 {
		return addr[:i]
	}
	return addr
}
