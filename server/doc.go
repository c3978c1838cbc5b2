// Package server implements the core of an OAuth 2.0 Pushed Authorization Request
// (RFC 9126) endpoint.
//
// A client pushes its authorization parameters over an authenticated back channel.
// The server checks the authentication verdict, validates the parameters, stores them
// under a short-lived opaque reference and returns the reference for use as a
// request_uri on the front channel.
//
// The Server type coordinates:
//   - Authentication gating (Verdict, produced by the caller before admission)
//   - Parameter validation (Validator, an ordered list of Check functions)
//   - Reference generation (Generator, 256 bits from crypto/rand by default)
//   - TTL-bound storage (RequestStore over a storage.ParRequestStore backend)
//
// Every admission ends in exactly one Result: Admitted, ClientError or CoreError.
// Nothing is stored unless the result is Admitted.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, store, &server.Config{
//	    Issuer:     "https://auth.example.com",
//	    RequestTTL: 90,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//
//	result := srv.Admit(ctx, server.Authenticated{ClientID: "web-app"}, form)
//
// The authorization endpoint redeems a request_uri with Redeem, which by default
// removes the request so that it can be used only once.
package server
