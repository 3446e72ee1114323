package githubhost

import (
	"errors"
	"fmt"
)

// Sentinel errors for host responses that change client-visible
// meaning. Callers match these with errors.Is.
var (
	// ErrUnauthorized means the host rejected our service credential.
	// This is our misconfiguration, not the caller's, so the HTTP
	// layer surfaces it as a 502 rather than passing 401 through.
	ErrUnauthorized = errors.New("github rejected credentials")
	ErrForbidden    = errors.New("github denied the operation")
	ErrNotFound     = errors.New("github resource not found")
	// ErrConflict means the operation is not valid in the run's
	// current terminal state, e.g. cancelling a finished run.
	ErrConflict = errors.New("run already in a terminal state")
)

// APIError carries the host's original status code and raw error body
// so diagnostics survive the trip up the stack. The body never
// contains our credential.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("github %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("github %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap folds well-known status codes into sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409, 410:
		return ErrConflict
	}
	return nil
}
