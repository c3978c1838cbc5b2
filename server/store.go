package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/storage"
)

const referenceLogLength = 8

// RequestStore stores pushed requests under fresh references and hands them back
// for redemption.
type RequestStore struct {
	backend     storage.ParRequestStore
	generator   Generator
	ttl         time.Duration
	maxAttempts int
	allowReuse  bool
	logger      *slog.Logger

	mu          sync.RWMutex
	now         func() time.Time
	onCollision func(ctx context.Context)
}

// RequestStoreConfig configures a RequestStore.
type RequestStoreConfig struct {
	TTL         time.Duration
	MaxAttempts int
	AllowReuse  bool
}

// NewRequestStore wraps backend. A nil generator uses DefaultReferenceBytes from crypto/rand.
func NewRequestStore(backend storage.ParRequestStore, generator Generator, cfg RequestStoreConfig, logger *slog.Logger) *RequestStore {
	if generator == nil {
		generator = NewRandomGenerator(DefaultReferenceBytes)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRequestTTL * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxReferenceAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestStore{
		backend:     backend,
		generator:   generator,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		allowReuse:  cfg.AllowReuse,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock replaces the time source used to stamp new requests.
func (rs *RequestStore) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.now = now
}

// SetGenerator replaces the reference generator. A nil generator restores the default.
func (rs *RequestStore) SetGenerator(g Generator) {
	if g == nil {
		g = NewRandomGenerator(DefaultReferenceBytes)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.generator = g
}

func (rs *RequestStore) currentGenerator() Generator {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.generator
}

// OnCollision installs a hook called each time a generated reference is already taken.
func (rs *RequestStore) OnCollision(fn func(ctx context.Context)) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.onCollision = fn
}

// TTL returns the lifetime given to new requests.
func (rs *RequestStore) TTL() time.Duration {
	return rs.ttl
}

func (rs *RequestStore) clock() time.Time {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.now()
}

func (rs *RequestStore) collided(ctx context.Context) {
	rs.mu.RLock()
	fn := rs.onCollision
	rs.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// Admit stores params for clientID under a new reference.
// A reference collision is retried with a fresh reference up to MaxAttempts times;
// after that ErrReferenceExhausted is returned. Any other backend error is returned
// immediately and nothing is stored.
func (rs *RequestStore) Admit(ctx context.Context, clientID string, params ParameterSet) (*storage.ParRequest, error) {
	attempt := 0
	operation := func() (*storage.ParRequest, error) {
		attempt++

		reference, err := rs.currentGenerator().Generate()
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		now := rs.clock()
		req := &storage.ParRequest{
			Reference:  reference,
			ClientID:   clientID,
			Parameters: params.Map(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(rs.ttl),
		}

		err = rs.backend.SaveParRequest(ctx, req)
		switch {
		case err == nil:
			return req, nil
		case errors.Is(err, storage.ErrParRequestExists):
			rs.collided(ctx)
			rs.logger.Warn("Request reference collision, retrying",
				"client_id", clientID,
				"attempt", attempt,
				"reference_prefix", util.SafeTruncate(reference, referenceLogLength))
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	req, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(rs.maxAttempts)), // #nosec G115 -- maxAttempts is positive
	)
	if err != nil {
		if errors.Is(err, storage.ErrParRequestExists) {
			return nil, fmt.Errorf("%w after %d attempts", ErrReferenceExhausted, attempt)
		}
		return nil, fmt.Errorf("failed to store pushed authorization request: %w", err)
	}
	return req, nil
}

// Retrieve returns the request stored under reference.
// Unless reuse is allowed the request is removed, so only one caller ever gets it.
// Returns storage.ErrParRequestNotFound when absent, expired or already consumed.
func (rs *RequestStore) Retrieve(ctx context.Context, reference string) (*storage.ParRequest, error) {
	if rs.allowReuse {
		return rs.backend.GetParRequest(ctx, reference)
	}
	return rs.backend.ConsumeParRequest(ctx, reference)
}
