package par

import (
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth-par/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeUnauthorizedClient      = server.ErrorCodeUnauthorizedClient
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeInvalidRequestURI       = server.ErrorCodeInvalidRequestURI
	ErrorCodeServerError             = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded       = server.ErrorCodeRateLimitExceeded
)

// ServerErrorDescription is the fixed description of every 500 response
const ServerErrorDescription = server.ServerErrorDescription

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_client")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrUnauthorizedClient indicates the client is not authenticated or not allowed to push this request
	ErrUnauthorizedClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}

	// ErrServerError is the only error shape returned for server-side failures
	ErrServerError = func() *OAuthError {
		return NewOAuthError(ErrorCodeServerError, ServerErrorDescription, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller sent too many requests
	ErrRateLimitExceeded = func() *OAuthError {
		return NewOAuthError(ErrorCodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests)
	}
)

// ToOAuthError maps an admission result that is not Admitted to its HTTP error.
// invalid_client is 401, every other client error is 400 and a core error is always
// a 500 with the fixed ServerErrorDescription. It returns nil for Admitted.
func ToOAuthError(result server.Result) *OAuthError {
	switch r := result.(type) {
	case server.Admitted, *server.Admitted:
		return nil
	case server.ClientError:
		return clientErrorToOAuth(r)
	case *server.ClientError:
		if r != nil {
			return clientErrorToOAuth(*r)
		}
	}
	return ErrServerError()
}

func clientErrorToOAuth(ce server.ClientError) *OAuthError {
	status := http.StatusBadRequest
	if ce.Code == ErrorCodeInvalidClient {
		status = http.StatusUnauthorized
	}
	return NewOAuthError(ce.Code, ce.Description, status)
}
