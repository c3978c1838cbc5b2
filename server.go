package par

import (
	"fmt"

	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/server"
	"github.com/giantswarm/oauth-par/storage"
)

// New assembles a PAR endpoint: the admission server over backend, its auditor,
// payload encryptor and rate limiter, and the HTTP handler in front of it.
// clientStore may be nil when cfg.Authenticator decides verdicts on its own.
//
// Call Close on the returned handler to stop background work.
func New(backend storage.ParRequestStore, clientStore storage.ClientStore, cfg *Config) (*Handler, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	serverConfig := cfg.Server
	srv, err := server.New(backend, clientStore, &serverConfig, cfg.Logger)
	if err != nil {
		return nil, err
	}
	logger := srv.Logger

	if cfg.Instrumentation != nil {
		srv.SetInstrumentation(cfg.Instrumentation)
	}

	if len(cfg.Security.EncryptionKey) > 0 {
		enc, err := security.NewEncryptor(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		srv.SetEncryptor(enc)
		logger.Info("Request payload encryption enabled", "algorithm", "AES-256-GCM")
	}

	auditor := security.NewAuditor(logger, cfg.Security.EnableAuditLogging)
	if cfg.Instrumentation != nil {
		metrics := cfg.Instrumentation.Metrics()
		auditor.SetRecorder(metrics.RecordAuditEvent)
	}
	srv.SetAuditor(auditor)

	h := NewHandler(srv, cfg.Authenticator, logger)

	if cfg.RateLimit.Rate > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = cfg.RateLimit.Rate
		}
		maxEntries := cfg.RateLimit.MaxEntries
		if maxEntries <= 0 {
			maxEntries = security.DefaultRateLimiterMaxEntries
		}
		h.SetRateLimiter(security.NewRateLimiterWithConfig(cfg.RateLimit.Rate, burst, maxEntries, logger))
	}

	return h, nil
}

// Server returns the admission server, which also redeems request_uri values
func (h *Handler) Server() *server.Server {
	return h.server
}

// Close stops the rate limiter's background cleanup
func (h *Handler) Close() {
	if h.RateLimiter != nil {
		h.RateLimiter.Stop()
	}
}
