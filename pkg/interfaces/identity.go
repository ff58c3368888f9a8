package interfaces

import (
	"context"

	"huddle/pkg/types"
)

// IdentityVerifier validates bearer credentials issued by the identity service
// ARCHITECTURAL DISCOVERY: The core consumes verification only; issuing
// tokens and hashing passwords stay with the identity service
type IdentityVerifier interface {
	// Verify returns the identity encoded in token or an error when the
	// token is malformed, expired, or signed with the wrong key
	Verify(ctx context.Context, token string) (*types.Identity, error)
}
