// Package security provides the protective layers around the PAR endpoint.
//
// # Audit Logging
//
// Auditor writes "security_audit" records for admissions, rejections, redemptions,
// authentication failures and rate limit violations. Only reference prefixes are
// logged; request parameters and secrets never are.
//
// # Rate Limiting
//
// RateLimiter is a per-identifier token bucket (golang.org/x/time/rate) with LRU
// eviction so that many distinct callers cannot exhaust memory.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// # Request IDs
//
// RequestIDMiddleware propagates or generates X-Request-ID and stores it in the
// request context, where audit records pick it up.
//
// # Encryption
//
// Encryptor seals stored parameter payloads with AES-256-GCM. Remote backends use it
// so that authorization request parameters are not readable from the cache.
package security
