package server

import (
	"log/slog"
	"strings"
)

// Defaults applied by applySecureDefaults
const (
	DefaultRequestTTL           = 600 // seconds
	DefaultReferenceBytes       = 32
	MinReferenceBytes           = 16
	DefaultMaxReferenceAttempts = 3
	DefaultParEndpointPath      = "/oauth/par"
	DefaultMaxRequestBodyBytes  = 64 << 10
	DefaultTrustedProxyCount    = 1
)

// Config holds PAR server configuration. It is read once by New.
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationEndpoint and TokenEndpoint are advertised in server metadata.
	// They are served elsewhere; this server only redeems request_uri values for them.
	AuthorizationEndpoint string
	TokenEndpoint         string

	// AllowInsecureHTTP permits an http:// issuer on a non-loopback host.
	// Default: false
	AllowInsecureHTTP bool

	// RequestTTL is how long a pushed request can be redeemed.
	// RFC 9126 recommends a short lifetime; clients must redeem within it.
	RequestTTL int64 // seconds, default: 600 (10 minutes)

	// ReferenceBytes is the number of random bytes in a reference.
	// Values below 16 are raised to 16.
	ReferenceBytes int // default: 32 (256 bits)

	// MaxReferenceAttempts bounds reference generation when the store reports a collision
	MaxReferenceAttempts int // default: 3

	// AllowReuse lets a request_uri be redeemed any number of times until it expires.
	// When false, redemption removes the request (single use).
	// Default: false
	AllowReuse bool

	// RequirePKCE makes code_challenge mandatory.
	// When true, code_challenge parameter is mandatory (secure by default)
	// Default: true
	RequirePKCE bool // default: true

	// DisablePKCE makes code_challenge optional. RequirePKCE=false on its own is
	// indistinguishable from an unset field and is raised to true; set this instead.
	// Default: false
	DisablePKCE bool

	// AllowPKCEPlain allows the 'plain' code_challenge_method (NOT RECOMMENDED)
	// When false, only S256 method is accepted (secure by default)
	// Default: false
	AllowPKCEPlain bool // default: false

	// SupportedScopes lists the scopes clients may request.
	// If empty, all scopes are allowed
	SupportedScopes []string

	// SupportedResponseTypes lists accepted response_type values.
	// Default: ["code"]
	SupportedResponseTypes []string

	// RequirePushedAuthorizationRequests is advertised in server metadata
	// (RFC 9126 section 5). It tells clients the authorization endpoint only
	// accepts request_uri values obtained from this endpoint.
	RequirePushedAuthorizationRequests bool

	// ParEndpointPath is the path the PAR endpoint is served on
	ParEndpointPath string // default: "/oauth/par"

	// MaxRequestBodyBytes bounds the size of a pushed request body
	MaxRequestBodyBytes int64 // default: 65536

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Default: 1
	TrustedProxyCount int // default: 1

	// ExtraChecks run after the built-in validation checks, in order
	ExtraChecks []Check
}

// GetRequestTTL returns the request lifetime in seconds
func (c *Config) GetRequestTTL() int64 {
	if c.RequestTTL <= 0 {
		return DefaultRequestTTL
	}
	return c.RequestTTL
}

// applySecureDefaults applies secure-by-default configuration values
// This follows the principle: secure by default, opt-in for less secure options
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	config.Issuer = strings.TrimSuffix(config.Issuer, "/")

	applyTimeDefaults(config)
	applyLimitDefaults(config)
	applySecurityDefaults(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.RequestTTL <= 0 {
		config.RequestTTL = DefaultRequestTTL
	}
}

func applyLimitDefaults(config *Config) {
	if config.ReferenceBytes == 0 {
		config.ReferenceBytes = DefaultReferenceBytes
	}
	if config.ReferenceBytes < MinReferenceBytes {
		config.ReferenceBytes = MinReferenceBytes
	}
	if config.MaxReferenceAttempts <= 0 {
		config.MaxReferenceAttempts = DefaultMaxReferenceAttempts
	}
	if len(config.SupportedResponseTypes) == 0 {
		config.SupportedResponseTypes = []string{"code"}
	}
	if config.ParEndpointPath == "" {
		config.ParEndpointPath = DefaultParEndpointPath
	}
	if config.MaxRequestBodyBytes <= 0 {
		config.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = DefaultTrustedProxyCount
	}
}

// applySecurityDefaults sets secure defaults for security-related configuration
// Uses a heuristic to detect if config is new (all security bools false) vs explicitly configured
func applySecurityDefaults(config *Config, logger *slog.Logger) {
	isDefaultConfig := !config.RequirePKCE &&
		!config.AllowPKCEPlain &&
		!config.TrustProxy

	if isDefaultConfig {
		config.RequirePKCE = true
		config.AllowPKCEPlain = false
		config.TrustProxy = false
	}
	if config.DisablePKCE {
		config.RequirePKCE = false
	}

	logSecurityWarnings(config, logger)
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if !config.RequirePKCE {
		logger.Warn("⚠️  SECURITY WARNING: PKCE is DISABLED",
			"risk", "Authorization code interception attacks",
			"recommendation", "Set RequirePKCE=true and DisablePKCE=false",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc9126#section-7")
	}
	if config.AllowPKCEPlain {
		logger.Warn("⚠️  SECURITY WARNING: Plain PKCE method is ALLOWED",
			"risk", "Weak code challenge protection",
			"recommendation", "Set AllowPKCEPlain=false to require S256",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc7636#section-4.2")
	}
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
	if config.AllowReuse {
		logger.Warn("⚠️  SECURITY NOTICE: request_uri reuse is ALLOWED",
			"risk", "A leaked request_uri can be replayed until it expires",
			"recommendation", "Set AllowReuse=false for single-use request_uri values",
			"learn_more", "https://datatracker.ietf.org/doc/html/rfc9126#section-4")
	}
	if config.RequestTTL > 3600 {
		logger.Warn("⚠️  CONFIGURATION WARNING: long request lifetime",
			"request_ttl", config.RequestTTL,
			"recommendation", "Keep RequestTTL short; the request only has to survive one redirect")
	}
}
