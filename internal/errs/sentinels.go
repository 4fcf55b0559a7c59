// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCryptoUnavailable indicates the platform could not produce key material.
	ErrCryptoUnavailable = errors.New("crypto unavailable")

	// ErrDecryptFailed indicates a decryption produced empty or malformed output.
	// Always fatal to the enclosing exchange; never retried.
	ErrDecryptFailed = errors.New("decrypt failed")

	// ErrProfileInvalid indicates the remote profile could not be probed
	// or lacks required fields (request endpoint, public key).
	ErrProfileInvalid = errors.New("profile invalid")

	// ErrAlreadyRequested indicates a pending request for the target already exists.
	ErrAlreadyRequested = errors.New("already requested")

	// ErrAlreadyFriends indicates the relationship is already at friend level.
	ErrAlreadyFriends = errors.New("already friends")

	// ErrRateLimited indicates the target profile exceeded its inbound
	// request quota for the current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrDisallowedURL indicates the locator fails the URL allow/deny policy.
	ErrDisallowedURL = errors.New("disallowed url")

	// ErrBlockedDomain indicates the locator's domain is on the block list.
	ErrBlockedDomain = errors.New("blocked domain")

	// ErrDuplicateID indicates a dfrn-id collides with one already bound to
	// a different contact (the birthday-paradox case, wire status 1).
	ErrDuplicateID = errors.New("duplicate dfrn-id")

	// ErrEmptySourceURL indicates the handshake source_url decrypted to nothing.
	ErrEmptySourceURL = errors.New("empty source url")

	// ErrChallengeNotFound indicates a challenge was already consumed,
	// expired, or never issued.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTimeout indicates the counterpart did not answer within the deadline.
	ErrTimeout = errors.New("remote timeout")
)
