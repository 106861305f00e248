// Package apperror holds the error taxonomy shared by the integration and
// webhook subsystems. Callers branch with errors.Is.
package apperror

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized is a bad webhook signature or token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedPayload is a payload missing a required field.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsupportedEvent is an unrecognized event name or suffix.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrNoActiveConnection means no active integration connection exists.
	ErrNoActiveConnection = errors.New("no active connection")
	// ErrRefreshFailed means the provider refused or failed a token refresh.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrProviderRequestFailed is a network or HTTP error talking to the provider.
	ErrProviderRequestFailed = errors.New("provider request failed")
	// ErrNotFound is a missing local record.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedProvider is a provider with no OAuth client configured.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrConflict is a write that would break a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// HTTPStatus maps an error to the response code used by the API handlers.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrUnsupportedEvent), errors.Is(err, ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoActiveConnection):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRefreshFailed), errors.Is(err, ErrProviderRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
