package caldav

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationFailed is returned whenever the server answers 401.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDiscoveryFailed is returned when no principal or calendar home can be located.
	ErrDiscoveryFailed = errors.New("server does not support CalDAV auto-discovery")
	// ErrNotConnected is returned by the registry for unknown accounts.
	ErrNotConnected = errors.New("account not connected")
	// ErrNotSynced is returned when an operation needs an href the task does not have.
	ErrNotSynced = errors.New("task has no server location")
)

// HTTPError describes an unexpected status code.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NotFound reports whether the resource is gone (404 or 410).
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// PreconditionFailed reports a stale If-Match.
func (e *HTTPError) PreconditionFailed() bool {
	return e.StatusCode == http.StatusPreconditionFailed
}

// IsNotFound reports whether err carries a 404 or 410 response.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.NotFound()
}

// IsPreconditionFailed reports whether err carries a 412 response.
func IsPreconditionFailed(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.PreconditionFailed()
}

func isAuth(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}
