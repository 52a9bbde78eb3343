// Package server implements the OAuth 2.0 grant engine: client policy
// derivation, the token endpoint grant handlers (authorization_code with
// PKCE, client_credentials, password, refresh_token), the authorization
// endpoint state machine for the code and implicit flows, token
// revocation per RFC 7009, client administration, and maintenance
// purging.
//
// The package is transport-agnostic. It consumes parsed request structs
// and returns result structs or *Error values; the root package adapts
// it to HTTP. Persistence goes through the storage interfaces and token
// signing through the token codec, both injected at construction.
package server
