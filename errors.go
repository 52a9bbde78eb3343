package oauth

import "github.com/oakward/oauth-core/server"

// Error is the structured OAuth error produced everywhere in this module.
// Re-exported so embedders can type-assert on handler failures without
// importing the server package.
type Error = server.Error

// OAuth error codes, re-exported from the grant engine.
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeUnauthorizedClient      = server.ErrorCodeUnauthorizedClient
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedTokenType    = server.ErrorCodeUnsupportedTokenType
	ErrorCodeServerError             = server.ErrorCodeServerError
	ErrorCodeTemporarilyUnavailable  = server.ErrorCodeTemporarilyUnavailable
	ErrorCodeInvalidToken            = server.ErrorCodeInvalidToken
	ErrorCodeInsufficientScope       = server.ErrorCodeInsufficientScope
)

// NewError creates a structured OAuth error.
var NewError = server.NewError
