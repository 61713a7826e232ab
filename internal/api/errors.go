// Package api provides the HTTP request pipeline for the opsdesk backend:
// bearer-token attachment, a single refresh-and-retry cycle on unauthorized
// responses, and error classification. Transient retry for network and
// server errors is deliberately NOT handled here — the query layer owns
// that budget, keeping the single-retry-on-401 invariant auditable on its own.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, api.ErrValidation) to check.
var (
	// ErrAuth means the refresh token was missing, expired, or rejected, or
	// a request remained unauthorized after the refresh-and-retry cycle.
	// Credentials are cleared before this error is returned.
	ErrAuth = errors.New("api: authentication failed")

	// ErrNetwork is a transport-level failure: no HTTP response was received.
	ErrNetwork = errors.New("api: network error")

	// ErrValidation is any 4xx other than 401. Never retried.
	ErrValidation = errors.New("api: request rejected")

	// ErrServer is any 5xx response.
	ErrServer = errors.New("api: server error")
)

// APIError wraps a sentinel error with the HTTP status code, the request ID
// the pipeline attached to the outbound request, and the response body for
// debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
// 401 maps to ErrAuth: by the time classification happens the pipeline has
// already spent its refresh-and-retry cycle.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrAuth
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		return ErrValidation
	case code >= http.StatusInternalServerError:
		return ErrServer
	default:
		return nil
	}
}

// IsTransient reports whether an error is worth retrying at the query layer:
// transport failures and 5xx responses. Validation and auth errors are final.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}
