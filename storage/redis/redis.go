// Package redis provides a Redis storage backend for pushed authorization requests,
// for deployments that run Redis (standalone or Sentinel) rather than Valkey.
//
// Keys follow the same schema as storage/valkey:
//
//	{prefix}par:{reference}     -> JSON(ParRequest) with TTL
//	{prefix}client:{clientID}   -> JSON(Client)
//
// SaveParRequest uses SET NX with the request lifetime and ConsumeParRequest uses
// GETDEL (Redis 6.2 or newer), so both the unique insert and the single-use read
// are atomic on the server.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "oauthpar:"

	// DefaultDialTimeout is used when Config.DialTimeout is zero
	DefaultDialTimeout = 5 * time.Second

	referenceLogLength = 8
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Addrs are the server addresses. A single address selects a standalone
	// client; with MasterName set they are Sentinel addresses.
	Addrs []string

	// MasterName selects Sentinel failover when set
	MasterName string

	Username string
	Password string
	DB       int

	// KeyPrefix is the prefix for all keys (default "oauthpar:")
	KeyPrefix string

	// TLS is the optional TLS configuration
	TLS *tls.Config

	DialTimeout time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of ParRequestStore and ClientStore.
type Store struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger

	mu        sync.RWMutex
	encryptor *security.Encryptor
	now       func() time.Time
}

var (
	_ storage.ParRequestStore = (*Store)(nil)
	_ storage.ClientStore     = (*Store)(nil)
)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		MasterName:  cfg.MasterName,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		TLSConfig:   cfg.TLS,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Logger)
	s.logger.Info("Connected to Redis storage",
		"addrs", cfg.Addrs,
		"master_name", cfg.MasterName,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient wraps a pre-configured client. Tests use it with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		prefix: keyPrefix,
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetEncryptor sets the encryptor used for request parameters at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
}

// SetClock replaces the time source used for read-side expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) getEncryptor() *security.Encryptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encryptor
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) parRequestKey(reference string) string {
	return s.prefix + "par:" + reference
}

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

// -----------------------
// ParRequestStore
// -----------------------

// SaveParRequest stores req with SET NX and the request's lifetime as TTL.
func (s *Store) SaveParRequest(ctx context.Context, req *storage.ParRequest) error {
	if req == nil || req.Reference == "" {
		return errors.New("invalid pushed authorization request")
	}

	ttl := req.TTL()
	if ttl <= 0 {
		return fmt.Errorf("pushed authorization request has non-positive lifetime %v", ttl)
	}

	data, err := storage.MarshalParRequest(req, s.getEncryptor())
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.parRequestKey(req.Reference), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save pushed authorization request: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrParRequestExists, util.SafeTruncate(req.Reference, referenceLogLength))
	}

	s.logger.Debug("Saved pushed authorization request",
		"client_id", req.ClientID,
		"reference_prefix", util.SafeTruncate(req.Reference, referenceLogLength),
		"ttl", ttl)
	return nil
}

// GetParRequest returns the request without removing it.
func (s *Store) GetParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	data, err := s.client.Get(ctx, s.parRequestKey(reference)).Bytes()
	return s.decodeParRequest(data, err)
}

// ConsumeParRequest atomically reads and deletes the request with GETDEL.
func (s *Store) ConsumeParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	data, err := s.client.GetDel(ctx, s.parRequestKey(reference)).Bytes()
	return s.decodeParRequest(data, err)
}

// DeleteParRequest removes the request if present.
func (s *Store) DeleteParRequest(ctx context.Context, reference string) error {
	if err := s.client.Del(ctx, s.parRequestKey(reference)).Err(); err != nil {
		return fmt.Errorf("failed to delete pushed authorization request: %w", err)
	}
	return nil
}

func (s *Store) decodeParRequest(data []byte, err error) (*storage.ParRequest, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrParRequestNotFound
		}
		return nil, fmt.Errorf("failed to read pushed authorization request: %w", err)
	}

	req, err := storage.UnmarshalParRequest(data, s.getEncryptor())
	if err != nil {
		return nil, err
	}
	if req.Expired(s.clock()) {
		return nil, storage.ErrParRequestNotFound
	}
	return req, nil
}

// -----------------------
// ClientStore
// -----------------------

// SaveClient adds or updates a client. Clients do not expire.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return errors.New("invalid client")
	}

	data, err := storage.MarshalClient(client)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.clientKey(client.ClientID), data, 0).Err()
}

// GetClient loads the client by its ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return storage.UnmarshalClient(data)
}

// ValidateClientSecret validates a client's secret in constant work.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, lookupErr := s.GetClient(ctx, clientID)
	return storage.VerifyClientSecret(client, lookupErr, clientSecret)
}
