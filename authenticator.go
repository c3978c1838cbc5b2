package par

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/giantswarm/oauth-par/server"
	"github.com/giantswarm/oauth-par/storage"
)

// Client authentication methods (RFC 7591 section 2)
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"
)

// ClientAuthenticator decides who is pushing a request. It runs after the form body
// has been parsed, so implementations read credentials from r.PostForm, never r.Form.
type ClientAuthenticator interface {
	Authenticate(r *http.Request) server.Verdict
}

// AuthenticatorFunc adapts a function to ClientAuthenticator
type AuthenticatorFunc func(r *http.Request) server.Verdict

// Authenticate calls f(r)
func (f AuthenticatorFunc) Authenticate(r *http.Request) server.Verdict {
	return f(r)
}

// SecretAuthenticator authenticates clients registered in a ClientStore using
// client_secret_basic, client_secret_post or, for public clients, client_id alone.
type SecretAuthenticator struct {
	store  storage.ClientStore
	logger *slog.Logger
}

// NewSecretAuthenticator creates an authenticator over store
func NewSecretAuthenticator(store storage.ClientStore, logger *slog.Logger) *SecretAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecretAuthenticator{store: store, logger: logger}
}

// Methods lists the authentication methods accepted, for server metadata
func (a *SecretAuthenticator) Methods() []string {
	return []string{AuthMethodClientSecretBasic, AuthMethodClientSecretPost, AuthMethodNone}
}

// Authenticate returns NoVerdict when the request carries no client identification.
// Rejected credentials yield Unauthenticated with invalid_client and a store failure
// yields AuthenticationSystemError.
func (a *SecretAuthenticator) Authenticate(r *http.Request) server.Verdict {
	basicID, basicSecret, hasBasic := r.BasicAuth()
	hasPostSecret := r.PostForm.Has(ParamClientSecret)

	if hasBasic && hasPostSecret {
		return server.Unauthenticated{
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: "Multiple client authentication methods used",
		}
	}

	var clientID, secret, method string
	switch {
	case hasBasic:
		// RFC 6749 section 2.3.1: credentials are form-urlencoded before base64
		var err error
		if clientID, err = url.QueryUnescape(basicID); err != nil {
			return invalidClient()
		}
		if secret, err = url.QueryUnescape(basicSecret); err != nil {
			return invalidClient()
		}
		method = AuthMethodClientSecretBasic
	case hasPostSecret:
		clientID = r.PostForm.Get(ParamClientID)
		secret = r.PostForm.Get(ParamClientSecret)
		method = AuthMethodClientSecretPost
	case r.PostForm.Get(ParamClientID) != "":
		clientID = r.PostForm.Get(ParamClientID)
		method = AuthMethodNone
	default:
		return server.NoVerdict{}
	}

	if clientID == "" {
		return server.Unauthenticated{ErrorCode: ErrorCodeInvalidRequest, ErrorMessage: "client_id is required"}
	}

	return a.verify(r.Context(), clientID, secret, method)
}

func (a *SecretAuthenticator) verify(ctx context.Context, clientID, secret, method string) server.Verdict {
	client, err := a.store.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			return server.AuthenticationSystemError{
				ErrorCode:    ErrorCodeServerError,
				ErrorMessage: "client lookup failed",
				Err:          err,
			}
		}
		// Equalize timing with a real secret check
		_ = storage.VerifyClientSecret(nil, err, secret)
		a.logger.Debug("Unknown client", "client_id", clientID, "method", method)
		return invalidClient()
	}

	if method == AuthMethodNone {
		if !client.IsPublic() {
			a.logger.Debug("Confidential client sent no credentials", "client_id", clientID)
			return invalidClient()
		}
		return server.Authenticated{ClientID: client.ClientID}
	}

	if client.IsPublic() {
		a.logger.Debug("Public client sent a secret", "client_id", clientID)
		return invalidClient()
	}
	if client.TokenEndpointAuthMethod != "" && client.TokenEndpointAuthMethod != method {
		a.logger.Debug("Client used an unregistered authentication method",
			"client_id", clientID,
			"method", method,
			"registered_method", client.TokenEndpointAuthMethod)
		return invalidClient()
	}

	if err := a.store.ValidateClientSecret(ctx, clientID, secret); err != nil {
		if errors.Is(err, storage.ErrInvalidClientCredentials) || errors.Is(err, storage.ErrClientNotFound) {
			a.logger.Debug("Client secret did not verify", "client_id", clientID)
			return invalidClient()
		}
		return server.AuthenticationSystemError{
			ErrorCode:    ErrorCodeServerError,
			ErrorMessage: "client secret validation failed",
			Err:          err,
		}
	}

	return server.Authenticated{ClientID: client.ClientID}
}

func invalidClient() server.Verdict {
	return server.Unauthenticated{ErrorCode: ErrorCodeInvalidClient, ErrorMessage: "Client authentication failed"}
}

type verdictContextKey struct{}

// ContextWithVerdict attaches a verdict decided by upstream middleware, for example
// after mutual TLS or private_key_jwt authentication.
func ContextWithVerdict(ctx context.Context, v server.Verdict) context.Context {
	return context.WithValue(ctx, verdictContextKey{}, v)
}

// VerdictFromContext returns the verdict attached by ContextWithVerdict
func VerdictFromContext(ctx context.Context) (server.Verdict, bool) {
	v, ok := ctx.Value(verdictContextKey{}).(server.Verdict)
	return v, ok && v != nil
}

// ContextAuthenticator returns the verdict attached to the request context, or
// NoVerdict when there is none.
type ContextAuthenticator struct{}

// Authenticate implements ClientAuthenticator
func (ContextAuthenticator) Authenticate(r *http.Request) server.Verdict {
	if v, ok := VerdictFromContext(r.Context()); ok {
		return v
	}
	return server.NoVerdict{}
}
