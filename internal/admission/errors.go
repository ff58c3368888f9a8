package admission

import "errors"

var (
	ErrCredentialMissing = errors.New("no credential supplied")
	ErrNoIdentity        = errors.New("verifier returned no identity")
	ErrNotMember         = errors.New("identity is not listed on the project")
)
