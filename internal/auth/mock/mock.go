// Package mock provides a test double for the auth.Verifier interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/HowDiggy/signconnect/internal/auth"
)

// Verifier is a mock implementation of auth.Verifier backed by a static
// token-to-identity table.
type Verifier struct {
	mu sync.Mutex

	// Identities maps accepted tokens to the identity each resolves to.
	// Tokens not in the map fail with auth.ErrInvalidToken.
	Identities map[string]auth.Identity

	// VerifyErr, if non-nil, is returned from every Verify call regardless
	// of the token.
	VerifyErr error

	// VerifyCalls records every token passed to Verify.
	VerifyCalls []string
}

// Ensure Verifier implements auth.Verifier at compile time.
var _ auth.Verifier = (*Verifier)(nil)

// Verify resolves the token against the Identities table.
func (v *Verifier) Verify(ctx context.Context, token string) (auth.Identity, error) {
	v.mu.Lock()
	v.VerifyCalls = append(v.VerifyCalls, token)
	errOut := v.VerifyErr
	id, ok := v.Identities[token]
	v.mu.Unlock()

	if errOut != nil {
		return auth.Identity{}, errOut
	}
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: unknown token", auth.ErrInvalidToken)
	}
	return id, nil
}

// Calls returns a snapshot of the verified tokens. Thread-safe.
func (v *Verifier) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.VerifyCalls...)
}
