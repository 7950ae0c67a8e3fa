package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenNotFound means the login page had no _csrfToken input.
	ErrTokenNotFound = errors.New("portal: login token not found")
	// ErrAuthenticationFailed is wrapped by every AuthError.
	ErrAuthenticationFailed = errors.New("portal: authentication failed")
	// ErrMarkerNotFound means no script on the page initializes FullCalendar.
	ErrMarkerNotFound = errors.New("portal: calendar script not found")
	// ErrEventsBlockNotFound means the calendar script has no events array.
	ErrEventsBlockNotFound = errors.New("portal: events array not found")
)

// AuthError is returned when the portal does not accept the credentials.
// Body holds the response the portal sent back, for diagnostics.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("portal: authentication failed (status %d)", e.StatusCode)
}

func (e *AuthError) Unwrap() error { return ErrAuthenticationFailed }

// NetworkError wraps a transport failure or an unexpected status.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("portal: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
