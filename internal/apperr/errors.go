// Package apperr defines the error taxonomy shared by the services and the
// mapping from those errors to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDuplicateIdentity is returned when registering an email that already exists.
	ErrDuplicateIdentity = errors.New("email already registered")

	// ErrInvalidCredentials is returned for a failed login. It does not reveal
	// whether the email exists.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrMissingCredentials is returned when no bearer token was presented.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidToken is returned when a bearer token fails verification or
	// its subject no longer exists.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInactiveAccount is returned when the token subject is deactivated.
	ErrInactiveAccount = errors.New("inactive account")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a revision token does not match the
	// stored document.
	ErrConflict = errors.New("revision conflict")

	// ErrTranscriptionFailed is returned when the speech service could not
	// produce a transcript.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrUpstreamUnavailable is returned when the document store or the
	// speech service cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamError records which remote service failed.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports ErrUpstreamUnavailable so callers can match without knowing the service.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Upstream wraps err as a failure of the named remote service.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Err: err}
}

// InputError is a malformed-request error whose Message is shown to the
// client as is. It matches ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return ErrInvalidInput.Error() + ": " + e.Message }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

// Invalid returns an InputError carrying msg.
func Invalid(msg string) error {
	return &InputError{Message: msg}
}

// IsAuthFailure reports whether err is one of the authentication failures
// that are surfaced to callers as a generic unauthorized outcome.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInactiveAccount)
}

// Status maps err to an HTTP status code and a message that is safe to
// return to the client.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case IsAuthFailure(err):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect email or password"
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict, "Email is already registered"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "You do not have permission to access this note"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Note not found"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "Note was modified concurrently, reload and retry"
	case errors.Is(err, ErrInvalidInput):
		var ie *InputError
		if errors.As(err, &ie) {
			return http.StatusBadRequest, ie.Message
		}
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "A backing service is unavailable"
	case errors.Is(err, ErrTranscriptionFailed):
		return http.StatusBadGateway, "Failed to transcribe audio"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
