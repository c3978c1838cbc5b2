package server

import "errors"

// OAuth error codes (RFC 6749 section 4.1.2.1 and 5.2, RFC 9126 section 2.3).
// The root package re-exports these; they live here because the root package imports server.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidRequestURI       = "invalid_request_uri"
	ErrorCodeServerError             = "server_error"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// ServerErrorDescription is the only description a caller ever sees for a CoreError.
const ServerErrorDescription = "Internal Server Error."

// Fixed descriptions for authentication outcomes.
const (
	descClientAuthRequired = "Client authentication required"
	descClientAuthFailed   = "Client authentication failed"
)

var (
	// ErrClientMismatch is returned by Redeem when the redeeming client did not push the request.
	ErrClientMismatch = errors.New("request_uri was issued to a different client")

	// ErrInvalidRequestURI is returned when a request_uri is not a PAR reference URN.
	ErrInvalidRequestURI = errors.New("request_uri is not a pushed authorization request reference")

	// ErrReferenceExhausted is returned when no unique reference was found within
	// the configured number of attempts.
	ErrReferenceExhausted = errors.New("could not allocate a unique request reference")
)
