package par

import (
	"log/slog"

	"github.com/giantswarm/oauth-par/instrumentation"
	"github.com/giantswarm/oauth-par/server"
)

// Config holds the PAR endpoint configuration.
// Structured using composition, see New.
type Config struct {
	// Server is the admission configuration, secure defaults are applied by server.New
	Server server.Config

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// Authenticator decides who is pushing. Nil authenticates against the client store.
	Authenticator ClientAuthenticator

	// Instrumentation enables metrics and tracing when set
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked IPs.
	// Zero uses security.DefaultRateLimiterMaxEntries.
	MaxEntries int
}

// SecurityConfig holds PAR security settings (secure by default)
type SecurityConfig struct {
	// EncryptionKey is the AES-256 key (32 bytes) used to encrypt stored parameters
	// on distributed backends. Nil disables encryption. Generate with security.GenerateKey().
	EncryptionKey []byte

	// EnableAuditLogging enables security audit logging.
	// Logs admissions, rejections, redemptions and rate limiting (sensitive data hashed).
	EnableAuditLogging bool
}
