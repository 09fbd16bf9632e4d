package locker

import (
	"errors"
	"fmt"
)

// Error taxonomy. Authentication and validation failures are terminal for
// the request; upstream rejections pass the broker's message through;
// transient errors are transport-level and safe to retry only for reads.
var (
	ErrAuthentication  = errors.New("broker authentication failed")
	ErrValidation      = errors.New("invalid request")
	ErrAccountMismatch = errors.New("account does not belong to connection")
	ErrTransient       = errors.New("transient upstream error")
)

// UpstreamError is a non-2xx reply from the broker, passed through with the
// broker's own message. It is never auto-retried except for the single
// refresh-and-retry on a stale-token 401.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream rejected request with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
