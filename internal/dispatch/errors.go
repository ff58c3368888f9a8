package dispatch

import "errors"

// Dispatch-related errors
var (
	ErrConnectionNotActive = errors.New("connection is not active")
	ErrNotAdmitted         = errors.New("connection is not in the admitted state")
)
