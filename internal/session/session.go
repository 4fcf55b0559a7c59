// Package session issues and verifies short-lived visitor sessions
// opened by a successful poll profile-check, scoped to one contact's
// profile-viewing permissions.
package session

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// VisitorTTL is how long a verified visitor session stays valid.
const VisitorTTL = 24 * time.Hour

// Perm is the permission scope granted to a visitor.
type Perm string

const (
	PermRead      Perm = "r"
	PermReadWrite Perm = "rw"
)

type visitorClaims struct {
	Perm string `json:"perm"`
	jwt.RegisteredClaims
}

// Manager signs and verifies visitor tokens.
type Manager struct {
	signKey []byte
	ttl     time.Duration
}

// New constructs a session manager with the default visitor TTL.
func New(signKey []byte) *Manager {
	return &Manager{signKey: signKey, ttl: VisitorTTL}
}

// IssueVisitor creates a signed HS256 token for the verified contact.
func (m *Manager) IssueVisitor(contactID uuid.UUID, perm Perm) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.ttl)
	claims := visitorClaims{
		Perm: string(perm),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   contactID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.signKey)
	return signed, exp, err
}

// VerifyVisitor checks the token and returns the contact it grants
// access as, plus the permission scope.
func (m *Manager) VerifyVisitor(token string) (uuid.UUID, Perm, error) {
	var claims visitorClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, "", errs.ErrUnauthorized
	}
	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return uuid.Nil, "", errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, "", errs.ErrUnauthorized
	}
	return id, Perm(claims.Perm), nil
}
