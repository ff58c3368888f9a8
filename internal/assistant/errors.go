package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks backend failures worth retrying, such as an
	// overloaded model or a rate-limited key.
	ErrTransient = errors.New("generative backend temporarily unavailable")

	ErrEmptyResponse = errors.New("generative backend returned no candidates")
	ErrMissingAPIKey = errors.New("generative backend API key is required")
)

// BackendError is a non-2xx answer from the generative backend.
type BackendError struct {
	StatusCode int
	Body       string
	transient  bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generative backend returned %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrTransient) classify retryable responses.
func (e *BackendError) Is(target error) bool {
	return target == ErrTransient && e.transient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
