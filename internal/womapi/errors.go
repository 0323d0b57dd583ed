package womapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingGroupID is wrapped by ConfigurationError when no group id is set.
	ErrMissingGroupID = errors.New("wom group id is not configured")
	// ErrMissingVerificationCode is wrapped by ConfigurationError when UpdateAll
	// has no group verification code.
	ErrMissingVerificationCode = errors.New("wom group verification code is not configured")
	// ErrNothingToUpdate is the 400 UpdateAll answer when every member is fresh.
	ErrNothingToUpdate = errors.New("nothing to update")
)

// ConfigurationError means the fetch was rejected before any request was sent.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError is a connection, DNS or timeout failure. No body was read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-2xx response. Message is the API's "message" field
// when the body carried one.
type HTTPStatusError struct {
	Code    int
	Message string
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("wom api responded %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("wom api responded %d %s", e.Code, http.StatusText(e.Code))
}

// DecodeError is a 2xx response whose body is not a group.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransient reports failures worth retrying: transport errors and 5xx.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return false
}

// Describe turns a fetch error into the single line shown to the user.
func Describe(err error) string {
	var (
		ce *ConfigurationError
		te *TransportError
		se *HTTPStatusError
		de *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingVerificationCode):
		return "Please configure your Wise Old Man group verification code in the settings."
	case errors.As(err, &ce):
		return "Please configure your Wise Old Man group ID in the settings."
	case errors.As(err, &te):
		return "Failed to fetch data from Wise Old Man API: " + te.Err.Error()
	case errors.As(err, &se):
		return fmt.Sprintf("Failed to fetch data. Response code: %d", se.Code)
	case errors.As(err, &de):
		return "Error parsing response from Wise Old Man API."
	default:
		return "Wise Old Man fetch failed: " + err.Error()
	}
}
