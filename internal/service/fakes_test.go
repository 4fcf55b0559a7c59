package service

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/notify"
)

// In-memory repository doubles mirroring the PostgreSQL semantics the
// services rely on.

type memContacts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Contact
}

func newMemContacts() *memContacts {
	return &memContacts{rows: map[uuid.UUID]*model.Contact{}}
}

func (m *memContacts) Create(_ context.Context, c *model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == c.UserID && c.DFRNID != "" && r.DFRNID == c.DFRNID {
			return errs.ErrDuplicateID
		}
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.rows[c.ID] = &cp
	return nil
}

func (m *memContacts) GetByID(_ context.Context, id uuid.UUID) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memContacts) GetByURL(_ context.Context, userID uuid.UUID, normURL string) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.NormURL == normURL {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memContacts) GetByIssuedID(_ context.Context, issuedID string) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.IssuedID == issuedID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memContacts) GetForPoll(_ context.Context, id model.DirectionalID) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		var hit bool
		switch id.Direction {
		case model.DirectionInbound:
			hit = r.IssuedID == id.ID && r.Duplex
		case model.DirectionOutbound:
			hit = r.DFRNID == id.ID && r.Duplex
		default:
			hit = r.DFRNID == id.ID || r.IssuedID == id.ID
		}
		if hit {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memContacts) StampIssuedID(_ context.Context, id uuid.UUID, issuedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	r.IssuedID = issuedID
	return nil
}

func (m *memContacts) SaveKeypair(_ context.Context, id uuid.UUID, pubKey, prvKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	r.PubKey, r.PrvKey = pubKey, prvKey
	return nil
}

func (m *memContacts) SaveHandshake(_ context.Context, id uuid.UUID, dfrnID, pubKey string, aesAllow bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	r.DFRNID, r.PubKey, r.AESAllow = dfrnID, pubKey, aesAllow
	return nil
}

func (m *memContacts) DFRNIDExists(_ context.Context, userID uuid.UUID, dfrnID string, exclude uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.DFRNID == dfrnID && r.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (m *memContacts) FinalizeRelation(_ context.Context, id uuid.UUID, rel model.Relation, duplex, hidden, forum, prv bool, network model.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	r.Rel, r.Duplex, r.Hidden, r.Forum, r.Prv = rel, duplex, hidden, forum, prv
	r.Network = network
	r.Blocked, r.Pending = false, false
	return nil
}

func (m *memContacts) SweepStale(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, r := range m.rows {
		if r.Blocked && r.Pending && r.Rel == model.RelationNone && r.CreatedAt.Before(cutoff) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type memIntros struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Intro
}

func newMemIntros() *memIntros {
	return &memIntros{rows: map[uuid.UUID]*model.Intro{}}
}

func (m *memIntros) Create(_ context.Context, in *model.Intro) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.rows[in.ID] = &cp
	return nil
}

func (m *memIntros) GetByContact(_ context.Context, contactID uuid.UUID) (*model.Intro, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ContactID == contactID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memIntros) UnblockByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Hash == hash {
			r.Blocked = false
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memIntros) DeleteByContact(_ context.Context, contactID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.ContactID == contactID {
			delete(m.rows, id)
			return nil
		}
	}
	return errs.ErrNotFound
}

type memUsers struct {
	rows map[uuid.UUID]*model.User
}

func newMemUsers(users ...*model.User) *memUsers {
	m := &memUsers{rows: map[uuid.UUID]*model.User{}}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByNickname(_ context.Context, nickname string) (*model.User, error) {
	for _, u := range m.rows {
		if u.Nickname == nickname {
			return u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

type memChallenges struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Challenge
}

func newMemChallenges() *memChallenges {
	return &memChallenges{rows: map[uuid.UUID]*model.Challenge{}}
}

func (m *memChallenges) Create(_ context.Context, ch *model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.rows[ch.ID] = &cp
	return nil
}

func (m *memChallenges) Consume(_ context.Context, dfrnID, nonce string) (*model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.DFRNID == dfrnID && r.Nonce == nonce && r.ExpiresAt.After(time.Now()) {
			cp := *r
			delete(m.rows, id)
			return &cp, nil
		}
	}
	return nil, errs.ErrChallengeNotFound
}

func (m *memChallenges) PurgeExpired(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if !r.ExpiresAt.After(now) {
			delete(m.rows, id)
		}
	}
	return nil
}

// Collaborator doubles.

type fakeLimiter struct {
	deny     bool
	recorded []string
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return !f.deny, nil }

func (f *fakeLimiter) Record(_ context.Context, targetURL string) error {
	f.recorded = append(f.recorded, targetURL)
	return nil
}

type fakeProber struct {
	prof *model.Profile
	err  error
}

func (f *fakeProber) Probe(context.Context, string) (*model.Profile, error) {
	return f.prof, f.err
}

type fakeClient struct {
	get  func(rawURL string) ([]byte, error)
	post func(rawURL string, form url.Values) ([]byte, error)
}

func (f *fakeClient) Get(_ context.Context, rawURL string, _ time.Duration) ([]byte, error) {
	if f.get == nil {
		return nil, nil
	}
	return f.get(rawURL)
}

func (f *fakeClient) PostForm(_ context.Context, rawURL string, form url.Values, _ time.Duration) ([]byte, error) {
	if f.post == nil {
		return nil, nil
	}
	return f.post(rawURL, form)
}

type fakeGroups struct {
	mu       sync.Mutex
	enrolled map[uuid.UUID]uuid.UUID // contact -> owning user
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{enrolled: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakeGroups) AddToDefault(_ context.Context, userID, contactID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrolled[contactID] = userID
	return nil
}

type fakeAvatars struct {
	fetched map[uuid.UUID]string
}

func newFakeAvatars() *fakeAvatars { return &fakeAvatars{fetched: map[uuid.UUID]string{}} }

func (f *fakeAvatars) Fetch(_ context.Context, contactID uuid.UUID, sourceURL string) error {
	f.fetched[contactID] = sourceURL
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Notify(_ context.Context, ev notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) kinds() []notify.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Kind, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}
