package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/dfrnproto/dfrnd/internal/crypto"
	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/limiter"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/notify"
	"github.com/dfrnproto/dfrnd/internal/probe"
	"github.com/dfrnproto/dfrnd/internal/repository"
)

// StaleRequestAge is how long an abandoned blocked+pending contact/intro
// pair survives before the opportunistic purge removes it.
const StaleRequestAge = 30 * time.Minute

// HTTPDoer is the outbound HTTP surface the phases need.
type HTTPDoer interface {
	Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
	PostForm(ctx context.Context, url string, form url.Values, timeout time.Duration) ([]byte, error)
}

// RequestService implements the Request Phase: a local user soliciting a
// remote profile (scenario 1), and the homecoming redirect from a remote
// requestor landing on this node (scenario 2).
type RequestService struct {
	contacts repository.ContactRepository
	intros   repository.IntroRepository
	users    repository.UserStore
	prober   probe.Prober
	lim      limiter.Limiter
	client   HTTPDoer
	policy   *URLPolicy
	confirm  *ConfirmService
	notifier notify.Notifier
	log      *zap.Logger
}

// NewRequestService constructs the request-phase service.
func NewRequestService(
	contacts repository.ContactRepository,
	intros repository.IntroRepository,
	users repository.UserStore,
	prober probe.Prober,
	lim limiter.Limiter,
	client HTTPDoer,
	policy *URLPolicy,
	confirm *ConfirmService,
	notifier notify.Notifier,
	log *zap.Logger,
) *RequestService {
	return &RequestService{
		contacts: contacts, intros: intros, users: users,
		prober: prober, lim: lim, client: client, policy: policy,
		confirm: confirm, notifier: notifier, log: log,
	}
}

// Initiate runs scenario 1: the local user solicits a relationship with
// a remote profile. On success it returns the URL of the target's
// request endpoint the user's browser must be redirected to, carrying
// our identity home ("homecoming" — the browser, not a backend call,
// closes the trust loop between two servers that share no channel).
func (s *RequestService) Initiate(ctx context.Context, userID uuid.UUID, target, note string, duplex bool) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	targetURL := probe.ResolveLocator(target)
	if err := s.policy.Check(targetURL); err != nil {
		return "", err
	}

	if n, err := s.contacts.SweepStale(ctx, StaleRequestAge); err != nil {
		return "", err
	} else if n > 0 {
		s.log.Info("purged stale pending requests", zap.Int64("count", n))
	}

	ok, err := s.lim.Allow(ctx, targetURL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.ErrRateLimited
	}

	prof, err := s.prober.Probe(ctx, targetURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrProfileInvalid, err)
	}
	if !prof.Valid() || prof.Network != model.NetworkDFRN {
		return "", errs.ErrProfileInvalid
	}

	issuedID, err := crypto.RandomHex(16)
	if err != nil {
		return "", err
	}
	normURL := probe.NormalizeURL(targetURL)

	contact, err := s.contacts.GetByURL(ctx, user.ID, normURL)
	switch {
	case err == nil:
		if contact.Rel == model.RelationFriend {
			return "", errs.ErrAlreadyFriends
		}
		if contact.Pending && contact.IssuedID != "" {
			return "", errs.ErrAlreadyRequested
		}
		// Reciprocal case: the other side reached us first. Reuse the
		// record, just stamp a fresh issued-id.
		if err := s.contacts.StampIssuedID(ctx, contact.ID, issuedID); err != nil {
			return "", err
		}
	case errors.Is(err, errs.ErrNotFound):
		contact = &model.Contact{
			ID:       uuid.Must(uuid.NewV4()),
			UserID:   user.ID,
			Name:     prof.Name,
			URL:      targetURL,
			NormURL:  normURL,
			Addr:     prof.Addr,
			PhotoURL: prof.Photo,
			IssuedID: issuedID,
			SitePub:  prof.Key,
			Request:  prof.Request,
			Confirm:  prof.Confirm,
			Notify:   prof.Notify,
			Poll:     prof.Poll,
			Blocked:  true,
			Pending:  true,
			Duplex:   duplex,
			Network:  prof.Network,
		}
		if err := s.contacts.Create(ctx, contact); err != nil {
			return "", err
		}
	default:
		return "", err
	}

	hash, err := crypto.RandomHex(16)
	if err != nil {
		return "", err
	}
	intro := &model.Intro{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    user.ID,
		ContactID: contact.ID,
		Note:      note,
		Hash:      hash,
		Blocked:   true, // hidden until the target acknowledges
	}
	if err := s.intros.Create(ctx, intro); err != nil {
		return "", err
	}
	if err := s.lim.Record(ctx, targetURL); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("dfrn_url", crypto.EncodeHex([]byte(user.URL)))
	q.Set("dfrn_version", DFRNVersion)
	q.Set("confirm_key", hash)
	q.Set("duplex", boolFlag(duplex))
	q.Set("aes_allow", "1")
	return prof.Request + "?" + q.Encode(), nil
}

// InboundRequest is the homecoming redirect payload landing on the
// target's request endpoint. The advertised dfrn_version is not
// inspected: both legacy and direction-tagged poll ids are accepted
// regardless of what the counterpart claims to speak.
type InboundRequest struct {
	DFRNURLHex string // requestor's profile URL, hex-encoded
	ConfirmKey string
	Duplex     bool
	AESAllow   bool
	Note       string
}

// InboundResult reports what scenario 2 did.
type InboundResult struct {
	ContactID    uuid.UUID
	IntroID      uuid.UUID
	AutoApproved bool
}

// HandleInbound runs scenario 2 on the target's node: record the
// requestor, surface an intro to the profile owner, and close the loop
// by echoing the confirm key back to the requestor's own request
// endpoint via a direct fetch.
func (s *RequestService) HandleInbound(ctx context.Context, nickname string, in InboundRequest) (*InboundResult, error) {
	user, err := s.users.GetByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}

	urlBytes, err := crypto.DecodeHex(in.DFRNURLHex)
	if err != nil || len(urlBytes) == 0 {
		return nil, errs.ErrEmptySourceURL
	}
	requestorURL := string(urlBytes)
	if err := s.policy.Check(requestorURL); err != nil {
		return nil, err
	}

	ok, err := s.lim.Allow(ctx, user.URL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrRateLimited
	}
	if err := s.lim.Record(ctx, user.URL); err != nil {
		return nil, err
	}

	normURL := probe.NormalizeURL(requestorURL)
	contact, err := s.contacts.GetByURL(ctx, user.ID, normURL)
	var prof *model.Profile
	switch {
	case err == nil:
		if contact.Rel == model.RelationFriend {
			return nil, errs.ErrAlreadyFriends
		}
		if contact.IssuedID == "" {
			issuedID, rerr := crypto.RandomHex(16)
			if rerr != nil {
				return nil, rerr
			}
			if err := s.contacts.StampIssuedID(ctx, contact.ID, issuedID); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, errs.ErrNotFound):
		prof, err = s.prober.Probe(ctx, requestorURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrProfileInvalid, err)
		}
		if !prof.Valid() {
			return nil, errs.ErrProfileInvalid
		}
		issuedID, rerr := crypto.RandomHex(16)
		if rerr != nil {
			return nil, rerr
		}
		contact = &model.Contact{
			ID:       uuid.Must(uuid.NewV4()),
			UserID:   user.ID,
			Name:     prof.Name,
			URL:      requestorURL,
			NormURL:  normURL,
			Addr:     prof.Addr,
			PhotoURL: prof.Photo,
			IssuedID: issuedID,
			SitePub:  prof.Key,
			Request:  prof.Request,
			Confirm:  prof.Confirm,
			Notify:   prof.Notify,
			Poll:     prof.Poll,
			Blocked:  true,
			Pending:  true,
			Duplex:   in.Duplex,
			AESAllow: in.AESAllow,
			Network:  prof.Network,
		}
		if err := s.contacts.Create(ctx, contact); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	intro := &model.Intro{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    user.ID,
		ContactID: contact.ID,
		Note:      in.Note,
		Hash:      in.ConfirmKey,
		Blocked:   false, // the requestor's browser just delivered the handshake
	}
	if err := s.intros.Create(ctx, intro); err != nil {
		return nil, err
	}

	if user.NotifyIntro {
		s.notifier.Notify(ctx, notify.Event{
			Kind:      notify.KindIntroReceived,
			UserID:    user.ID,
			ContactID: contact.ID,
			Message:   fmt.Sprintf("introduction from %s", contact.URL),
		})
	}

	// Close the loop: tell the requestor's server its confirm key landed.
	if in.ConfirmKey != "" && contact.Request != "" {
		ack := contact.Request + "?" + url.Values{"confirm_key": {in.ConfirmKey}}.Encode()
		if _, err := s.client.Get(ctx, ack, 30*time.Second); err != nil {
			s.log.Warn("confirm-key callback failed", zap.String("url", ack), zap.Error(err))
		}
	}

	res := &InboundResult{ContactID: contact.ID, IntroID: intro.ID}

	// Soapbox and community pages accept introductions without user action.
	if user.Page == model.PageSoapbox || user.Page == model.PageCommunity {
		hf := &model.Handsfree{
			UserID:    user.ID,
			ContactID: contact.ID,
			Duplex:    in.Duplex,
		}
		out, err := s.confirm.Approve(ctx, ApproveParams{Handsfree: hf})
		if err != nil {
			s.log.Warn("handsfree approval failed", zap.Error(err))
		} else if out.Status == StatusSuccess {
			res.AutoApproved = true
		}
	}
	return res, nil
}

// AckConfirmKey handles the loop-closing callback on the requestor's
// node: the target acknowledged, so the pending intro becomes visible.
func (s *RequestService) AckConfirmKey(ctx context.Context, confirmKey string) error {
	if strings.TrimSpace(confirmKey) == "" {
		return errs.ErrNotFound
	}
	return s.intros.UnblockByHash(ctx, confirmKey)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
