// Package oauth is an embeddable OAuth 2.0 authorization server core. It
// implements the authorization_code (with PKCE), client_credentials,
// password, refresh_token, and implicit grants over pluggable storage
// backends, with token revocation per RFC 7009 and a bearer-token guard
// for protected resources per RFC 6750.
//
// The package splits into layers:
//
//   - token: JWT signing and verification
//   - storage: the persistence contract, with memory and valkey backends
//   - server: the transport-agnostic grant engine
//   - strategy: federated identity providers for the authorize flow
//   - security: auditing, rate limiting, and request hardening
//   - oauth (this package): the HTTP adapter
//
// A minimal embedding wires a codec, stores, and a server into a Handler
// and mounts its endpoints:
//
//	codec, _ := token.New(token.Config{Secret: secret, Issuer: issuer})
//	store := memory.New()
//	srv, _ := server.New(codec, store, nil, store, store, &server.Config{Issuer: issuer}, logger)
//	handler := oauth.NewHandler(srv, logger)
//
//	mux.HandleFunc("POST /oauth/token", handler.ServeToken)
//	mux.HandleFunc("GET /oauth/authorize", handler.ServeAuthorize)
//	mux.HandleFunc("POST /oauth/authorize/decision", handler.ServeAuthorizeDecision)
//	mux.HandleFunc("POST /oauth/revoke", handler.ServeRevoke)
package oauth
