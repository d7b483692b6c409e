package gateway

import (
	"errors"
	"net/http"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/provenance"
)

var (
	// ErrAuthentication covers every rejected credential. Callers only
	// ever see "unauthorized"; the wrapped reason is for logs.
	ErrAuthentication = errors.New("unauthorized")

	// ErrPermissionDenied means the caller is known but the operation is
	// outside its grants.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUpstream is a failed or unreachable worker or Discord API.
	ErrUpstream = errors.New("upstream request failed")

	// ErrConfiguration is a required secret or key missing at runtime.
	ErrConfiguration = errors.New("gateway misconfigured")

	// ErrValidation is malformed caller input.
	ErrValidation = errors.New("invalid request")
)

// RequestError attaches an HTTP status to a failure.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// StatusCode maps an error to the HTTP status the caller should receive.
func StatusCode(err error) int {
	var reqErr *RequestError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, ErrAuthentication), errors.Is(err, provenance.ErrVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrManifestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, interfaces.ErrInvalidManifest), errors.Is(err, interfaces.ErrUnknownInteractionType):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the error text safe to show the caller.
func PublicMessage(err error) string {
	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return ErrAuthentication.Error()
	case http.StatusInternalServerError:
		if errors.Is(err, ErrConfiguration) || errors.Is(err, interfaces.ErrKeyNotConfigured) {
			return ErrConfiguration.Error()
		}
		return "internal server error"
	case http.StatusBadGateway:
		return ErrUpstream.Error()
	default:
		return err.Error()
	}
}

// PermissionError is a denied Discord API call.
type PermissionError struct {
	ManifestID    string
	RequiredScope string
}

func (e *PermissionError) Error() string { return ErrPermissionDenied.Error() }

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// AuthError is a rejected credential. Error prints only the generic text.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string { return ErrAuthentication.Error() }

func (e *AuthError) Unwrap() error { return ErrAuthentication }

func unauthorized(reason error) error { return &AuthError{Reason: reason} }

func configuration(err error) error {
	return &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.Join(ErrConfiguration, err)}
}
