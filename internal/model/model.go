// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Network identifies the protocol family a contact speaks.
type Network string

const (
	NetworkDFRN Network = "dfrn"
	NetworkFeed Network = "feed"
)

// Relation is the directional trust kind between the local user and a contact.
// Wire values are fixed by the protocol and must not be renumbered.
type Relation int

const (
	RelationNone     Relation = 0
	RelationFollower Relation = 1
	RelationSharing  Relation = 2
	RelationFriend   Relation = 3
)

// String returns the human-readable relation name.
func (r Relation) String() string {
	switch r {
	case RelationFollower:
		return "follower"
	case RelationSharing:
		return "sharing"
	case RelationFriend:
		return "friend"
	default:
		return "none"
	}
}

// Page hints the remote account's page type during confirm.
type Page int

const (
	PageNormal    Page = 0
	PageSoapbox   Page = 1
	PageCommunity Page = 2
)

// Contact is the durable record of a remote party's relationship state,
// one per (local user, remote identity) pair.
type Contact struct {
	ID     uuid.UUID
	UserID uuid.UUID // owning local user

	// Identity.
	Name     string
	URL      string // remote profile URL as claimed
	NormURL  string // normalized (scheme-insensitive) form
	Addr     string // canonical user@host address
	PhotoURL string

	// Protocol.
	DFRNID   string // id issued by the remote side, stored once confirmed
	IssuedID string // id we generated and sent to the remote side
	SitePub  string // remote node's site-wide public key (PEM)
	PubKey   string // per-relationship public key (PEM)
	PrvKey   string // per-relationship private key (PEM)
	Duplex   bool
	AESAllow bool // remote advertised the symmetric layer

	// Endpoints learned from the profile probe.
	Request string
	Confirm string
	Notify  string
	Poll    string

	// State.
	Blocked bool
	Pending bool
	Hidden  bool
	Rel     Relation
	Network Network
	Forum   bool // community page
	Prv     bool // private group

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Established reports whether the contact has a confirmed relationship.
func (c *Contact) Established() bool {
	return !c.Pending && c.Rel != RelationNone
}

// User is the local profile owner a contact belongs to. Account
// management itself lives outside this subsystem; only the fields the
// handshake needs are modeled.
type User struct {
	ID          uuid.UUID
	Nickname    string
	Name        string
	URL         string
	Photo       string
	Page        Page
	NotifyIntro bool   // owner wants a notification when an intro lands
	PubKey      string // user-level key for initial unauthenticated contact
	PrvKey      string
	CreatedAt   time.Time
}

// Intro is a pending inbound friend request awaiting local user action.
type Intro struct {
	ID        uuid.UUID
	UserID    uuid.UUID // owning local user
	ContactID uuid.UUID
	FID       uuid.UUID // forward-suggestion id; Nil for a fresh request
	Note      string    // free-text note from the requestor
	Hash      string    // opaque confirm key correlating the later approval
	Blocked   bool      // hidden until the remote handshake lands
	CreatedAt time.Time
}

// ChallengeType tags the purpose of an issued challenge.
type ChallengeType string

const (
	ChallengeData         ChallengeType = "data"
	ChallengeProfile      ChallengeType = "profile"
	ChallengeProfileCheck ChallengeType = "profile-check"
)

// Challenge is a single-use nonce bound to one poll round-trip.
type Challenge struct {
	ID         uuid.UUID
	DFRNID     string // counterpart's claimed id, wire-encoded
	Nonce      string
	Type       ChallengeType
	LastUpdate string // caller-supplied feed cursor
	ExpiresAt  time.Time
}

// Profile is the machine-readable descriptor discovered on a remote
// profile page. Zero-valued fields mean the probe found nothing.
type Profile struct {
	Name    string
	Nick    string
	Photo   string
	Key     string // site public key (PEM)
	Request string
	Confirm string
	Notify  string
	Poll    string
	Addr    string
	Network Network
}

// Valid reports whether the descriptor carries the fields required to
// start a DFRN introduction.
func (p *Profile) Valid() bool {
	return p.Request != "" && p.Key != ""
}

// Handsfree carries the auto-approval context from the Request Phase
// directly into the Confirm Phase for page types that accept
// introductions without user interaction. It replaces any session or
// process-global hand-off: auto-approval is an in-process call.
type Handsfree struct {
	UserID    uuid.UUID
	ContactID uuid.UUID
	Duplex    bool
	Hidden    bool
}
