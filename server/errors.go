package server

import (
	"fmt"
	"net/http"
)

// OAuth error codes per RFC 6749 Section 5.2 and Section 4.1.2.1.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedTokenType    = "unsupported_token_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeTemporarilyUnavailable  = "temporarily_unavailable"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeInsufficientScope       = "insufficient_scope"
)

// Error represents a structured OAuth 2.0 error. Every failure the grant
// engine reports to a caller is one of these; internal detail stays in
// the logs.
type Error struct {
	// Code is the OAuth error code (e.g. "invalid_grant").
	Code string

	// Description is the human-readable error_description.
	Description string

	// URI optionally points at error documentation (error_uri).
	URI string

	// State echoes the request's state parameter on browser-flow errors.
	State string

	// Scope carries the scope for WWW-Authenticate challenges.
	Scope string

	// Status is the HTTP status code the transport should use.
	Status int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the given state.
func (e *Error) WithState(state string) *Error {
	clone := *e
	clone.State = state
	return &clone
}

// NewError creates a structured OAuth error.
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Constructors for the error taxonomy. Grant handlers use these
// exclusively so every failure carries a proper code and HTTP status.
var (
	// ErrInvalidRequest indicates a missing or malformed parameter
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates an unknown, revoked, or badly
	// authenticated client. Carries 401: the transport must attach a
	// challenge header.
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates an expired, revoked, or mismatched code
	// or token
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates the requested scope is malformed or
	// exceeds what the client may request
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrUnauthorizedClient indicates the grant type is not in the
	// client's allowed set
	ErrUnauthorizedClient = func(desc string) *Error {
		return NewError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}

	// ErrAccessDenied indicates the resource owner or server refused the
	// request
	ErrAccessDenied = func(desc string) *Error {
		return NewError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}

	// ErrUnsupportedResponseType indicates a response_type other than
	// "code" or "token"
	ErrUnsupportedResponseType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates an unknown grant_type
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedTokenType indicates an unknown token_type_hint on
	// revocation
	ErrUnsupportedTokenType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedTokenType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an unexpected internal failure. The
	// description stays generic; detail goes to the logs only.
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrTemporarilyUnavailable is part of the taxonomy but not raised
	// by the core engine itself
	ErrTemporarilyUnavailable = func(desc string) *Error {
		return NewError(ErrorCodeTemporarilyUnavailable, desc, http.StatusServiceUnavailable)
	}

	// ErrInvalidToken indicates a missing, malformed, expired, or revoked
	// bearer token at a protected resource (RFC 6750)
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrInsufficientScope indicates a valid bearer token whose scope does
	// not cover the protected resource (RFC 6750)
	ErrInsufficientScope = func(desc, scope string) *Error {
		e := NewError(ErrorCodeInsufficientScope, desc, http.StatusForbidden)
		e.Scope = scope
		return e
	}
)
