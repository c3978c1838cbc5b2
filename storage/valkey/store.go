package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauthpar:"

	// referenceLogLength is the number of characters to include when logging references
	referenceLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxReferenceLength bounds the reference accepted as a key component
	MaxReferenceLength = 512
)

var errInputTooLarge = errors.New("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauthpar:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of ParRequestStore and ClientStore.
//
// Expiry is enforced twice: every request key carries a PX TTL so Valkey evicts
// it on its own, and reads compare ExpiresAt with the store clock so a request
// is never returned at or after its expiry, even inside the TTL's precision.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// encryptor, when enabled, seals request parameters at rest
	mu        sync.RWMutex
	encryptor *security.Encryptor
	now       func() time.Time
}

var (
	_ storage.ParRequestStore = (*Store)(nil)
	_ storage.ClientStore     = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetEncryptor sets the encryptor used for request parameters at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Request encryption at rest enabled for Valkey storage")
	}
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

// isNilError reports whether err is the Valkey nil reply (missing key, or a
// SET NX that did not set).
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// ============================================================
// Key Helpers
// ============================================================

// parRequestKey returns the key for a pushed request: {prefix}par:{reference}
func (s *Store) parRequestKey(reference string) string {
	return fmt.Sprintf("%spar:%s", s.prefix, reference)
}

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// ============================================================
// ParRequestStore Implementation
// ============================================================

// SaveParRequest stores req with SET NX PX, so the existence check and insert
// are a single server-side operation.
func (s *Store) SaveParRequest(ctx context.Context, req *storage.ParRequest) error {
	if req == nil || req.Reference == "" {
		return fmt.Errorf("invalid pushed authorization request")
	}
	if len(req.Reference) > MaxReferenceLength {
		return errInputTooLarge
	}

	ttl := req.TTL()
	if ttl <= 0 {
		return fmt.Errorf("pushed authorization request has non-positive lifetime %v", ttl)
	}

	data, err := storage.MarshalParRequest(req, s.getEncryptor())
	if err != nil {
		return err
	}

	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	key := s.parRequestKey(req.Reference)
	err = s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Nx().PxMilliseconds(ms).Build(),
	).Error()
	if err != nil {
		if isNilError(err) {
			return fmt.Errorf("%w: %s", storage.ErrParRequestExists, util.SafeTruncate(req.Reference, referenceLogLength))
		}
		return fmt.Errorf("failed to save pushed authorization request: %w", err)
	}

	s.logger.Debug("Saved pushed authorization request",
		"client_id", req.ClientID,
		"reference_prefix", util.SafeTruncate(req.Reference, referenceLogLength),
		"ttl", ttl)
	return nil
}

// GetParRequest returns the request without removing it
func (s *Store) GetParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	if len(reference) > MaxReferenceLength {
		return nil, storage.ErrParRequestNotFound
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.parRequestKey(reference)).Build()).AsBytes()
	return s.decodeParRequest(data, err)
}

// ConsumeParRequest atomically reads and deletes the request with GETDEL.
func (s *Store) ConsumeParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	if len(reference) > MaxReferenceLength {
		return nil, storage.ErrParRequestNotFound
	}

	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.parRequestKey(reference)).Build()).AsBytes()
	req, err := s.decodeParRequest(data, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Consumed pushed authorization request",
		"client_id", req.ClientID,
		"reference_prefix", util.SafeTruncate(reference, referenceLogLength))
	return req, nil
}

// DeleteParRequest removes the request if present
func (s *Store) DeleteParRequest(ctx context.Context, reference string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.parRequestKey(reference)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete pushed authorization request: %w", err)
	}
	return nil
}

func (s *Store) decodeParRequest(data []byte, err error) (*storage.ParRequest, error) {
	if err != nil {
		if isNilError(err) {
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
