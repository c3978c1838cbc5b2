package server

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/storage"
)

// Authorization request parameter names
const (
	ParamClientID            = "client_id"
	ParamRequestURI          = "request_uri"
	ParamResponseType        = "response_type"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeChallengeLength = 43
	MaxCodeChallengeLength = 128
	PKCEMethodS256         = "S256"
	PKCEMethodPlain        = "plain"
)

// codeChallengePattern is the unreserved character set of RFC 7636 section 4.2
var codeChallengePattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// ValidationInput is what each Check sees.
type ValidationInput struct {
	// ClientID is the authenticated client
	ClientID string

	// Client is the registered client, or nil when no client store is configured
	Client *storage.Client

	Params ParameterSet
}

// Rejection is a validation failure reported to the client as a ClientError.
type Rejection struct {
	Code        string
	Description string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

func reject(code, description string) *Rejection {
	return &Rejection{Code: code, Description: description}
}

// Check inspects a pushed request and returns a Rejection, or nil to accept it.
type Check func(ctx context.Context, in *ValidationInput) *Rejection

// Validator runs checks in a fixed order. The first rejection wins, so identical
// inputs always report the same error.
type Validator struct {
	checks []Check
}

// NewValidator returns a Validator with the built-in checks configured from config,
// followed by config.ExtraChecks.
func NewValidator(config *Config) *Validator {
	checks := []Check{
		CheckNoRequestURI,
		CheckClientIDMatches,
		checkResponseType(config.SupportedResponseTypes),
		CheckRedirectURI,
		checkPKCE(config.RequirePKCE, config.AllowPKCEPlain),
		checkScope(config.SupportedScopes),
	}
	checks = append(checks, config.ExtraChecks...)
	return &Validator{checks: checks}
}

// NewValidatorWithChecks returns a Validator that runs exactly checks.
func NewValidatorWithChecks(checks ...Check) *Validator {
	return &Validator{checks: slices.Clone(checks)}
}

// Validate runs every check until one rejects.
func (v *Validator) Validate(ctx context.Context, in *ValidationInput) *Rejection {
	for _, check := range v.checks {
		if r := check(ctx, in); r != nil {
			return r
		}
	}
	return nil
}

// CheckNoRequestURI rejects a request_uri inside a pushed request (RFC 9126 section 2.1).
func CheckNoRequestURI(_ context.Context, in *ValidationInput) *Rejection {
	if in.Params.Has(ParamRequestURI) {
		return reject(ErrorCodeInvalidRequest,
			"request_uri must not be included in a pushed authorization request")
	}
	return nil
}

// CheckClientIDMatches rejects a client_id parameter naming a client other than the
// authenticated one (RFC 9126 section 2.1). An absent client_id is accepted.
func CheckClientIDMatches(_ context.Context, in *ValidationInput) *Rejection {
	if in.Params.Has(ParamClientID) && in.Params.Get(ParamClientID) != in.ClientID {
		return reject(ErrorCodeInvalidRequest,
			"client_id does not match the authenticated client")
	}
	return nil
}

func checkResponseType(supported []string) Check {
	return func(_ context.Context, in *ValidationInput) *Rejection {
		responseType := in.Params.Get(ParamResponseType)
		if responseType == "" {
			return reject(ErrorCodeInvalidRequest, "response_type is required")
		}
		if !slices.Contains(supported, responseType) {
			return reject(ErrorCodeUnsupportedResponseType,
				fmt.Sprintf("response_type %q is not supported", responseType))
		}
		if in.Client != nil && len(in.Client.ResponseTypes) > 0 &&
			!slices.Contains(in.Client.ResponseTypes, responseType) {
			return reject(ErrorCodeUnauthorizedClient,
				fmt.Sprintf("client is not allowed to use response_type %q", responseType))
		}
		return nil
	}
}

// CheckRedirectURI requires redirect_uri and, when the client is known, an exact
// match with one of its registered URIs.
func CheckRedirectURI(_ context.Context, in *ValidationInput) *Rejection {
	redirectURI := in.Params.Get(ParamRedirectURI)
	if redirectURI == "" {
		return reject(ErrorCodeInvalidRequest, "redirect_uri is required")
	}

	if in.Client != nil && len(in.Client.RedirectURIs) > 0 {
		if !in.Client.HasRedirectURI(redirectURI) {
			return reject(ErrorCodeInvalidRequest, "redirect_uri is not registered for this client")
		}
		return nil
	}

	if err := util.ValidateRedirectURI(redirectURI); err != nil {
		return reject(ErrorCodeInvalidRequest, "redirect_uri is invalid")
	}
	return nil
}

func checkPKCE(required, allowPlain bool) Check {
	return func(_ context.Context, in *ValidationInput) *Rejection {
		challenge := in.Params.Get(ParamCodeChallenge)
		method := in.Params.Get(ParamCodeChallengeMethod)

		if challenge == "" {
			if method != "" {
				return reject(ErrorCodeInvalidRequest,
					"code_challenge_method requires code_challenge")
			}
			if required {
				return reject(ErrorCodeInvalidRequest,
					"code_challenge is required (PKCE)")
			}
			return nil
		}

		// RFC 7636 section 4.3: an absent method means plain
		if method == "" {
			method = PKCEMethodPlain
		}
		switch method {
		case PKCEMethodS256:
		case PKCEMethodPlain:
			if !allowPlain {
				return reject(ErrorCodeInvalidRequest,
					"code_challenge_method must be S256")
			}
		default:
			return reject(ErrorCodeInvalidRequest,
				fmt.Sprintf("unsupported code_challenge_method %q", method))
		}

		if len(challenge) < MinCodeChallengeLength || len(challenge) > MaxCodeChallengeLength {
			return reject(ErrorCodeInvalidRequest,
				fmt.Sprintf("code_challenge must be %d to %d characters", MinCodeChallengeLength, MaxCodeChallengeLength))
		}
		if !codeChallengePattern.MatchString(challenge) {
			return reject(ErrorCodeInvalidRequest,
				"code_challenge contains invalid characters")
		}
		return nil
	}
}

func checkScope(supported []string) Check {
	return func(_ context.Context, in *ValidationInput) *Rejection {
		for _, scope := range strings.Fields(in.Params.Get(ParamScope)) {
			if len(supported) > 0 && !slices.Contains(supported, scope) {
				return reject(ErrorCodeInvalidScope,
					fmt.Sprintf("scope %q is not supported", scope))
			}
			if in.Client != nil && len(in.Client.Scopes) > 0 && !slices.Contains(in.Client.Scopes, scope) {
				return reject(ErrorCodeInvalidScope,
					fmt.Sprintf("scope %q is not allowed for this client", scope))
			}
		}
		return nil
	}
}

// validateIssuer ensures the issuer is an absolute https URL, or http on a loopback
// host. Other http issuers need AllowInsecureHTTP.
func (s *Server) validateIssuer() error {
	if s.Config.Issuer == "" {
		return nil
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Host == "" {
		return fmt.Errorf("invalid issuer URL %q: host is required", s.Config.Issuer)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
		hostname := issuerURL.Hostname()
		if util.IsLoopbackHostname(hostname) {
			if !s.Config.AllowInsecureHTTP {
				s.Logger.Warn("⚠️  DEVELOPMENT WARNING: Serving PAR over HTTP on localhost",
					"issuer", s.Config.Issuer,
					"risk", "Client credentials exposed on local network",
					"to_suppress", "Set AllowInsecureHTTP=true in Config")
			}
			return nil
		}
		if !s.Config.AllowInsecureHTTP {
			return fmt.Errorf(
				"SECURITY ERROR: Issuer must use HTTPS (got %s://%s). "+
					"Pushed requests carry client credentials. "+
					"To run on localhost for development, set AllowInsecureHTTP=true",
				issuerURL.Scheme,
				hostname,
			)
		}
		s.Logger.Error("🚨 CRITICAL SECURITY WARNING: Serving PAR over HTTP",
			"issuer", s.Config.Issuer,
			"hostname", hostname,
			"action_required", "Switch to HTTPS immediately")
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}
