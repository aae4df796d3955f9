// Package auth defines identity verification for websocket handshakes.
//
// Clients present a bearer token as the first message after connecting. A
// Verifier checks the token against the identity provider and resolves it to
// a stable Identity; the connection layer then binds the identity to the
// connection for its whole lifetime.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned by Verify when the token is expired, revoked,
// malformed, or otherwise not acceptable. Callers close the connection with a
// policy-violation status when they see this error.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the resolved identity behind a verified token.
type Identity struct {
	// UID is the identity provider's stable unique identifier for the user.
	UID string

	// Email is the user's email address. May be empty if the provider did
	// not include an email claim.
	Email string

	// Name is the user's display name. May be empty.
	Name string
}

// Verifier checks bearer tokens and resolves them to identities.
//
// Implementations must be safe for concurrent use; one Verifier instance
// serves all websocket handshakes.
type Verifier interface {
	// Verify validates the token and returns the identity it asserts.
	// Returns an error wrapping ErrInvalidToken when the token is not valid,
	// or another error when verification could not be performed at all.
	Verify(ctx context.Context, token string) (Identity, error)
}
