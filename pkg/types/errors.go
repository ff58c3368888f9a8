package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidProjectID   = errors.New("project ID must be a 24 character hex object id")
	ErrInvalidProjectName = errors.New("project name must be 1-200 characters")
	ErrInvalidPayload     = errors.New("message payload must be a JSON object")
	ErrMissingMessage     = errors.New("message field is required")
	ErrMessageTooLarge    = errors.New("message exceeds 64KB limit")
)
