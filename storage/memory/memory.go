package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-par/instrumentation"
	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/storage"
)

const (
	// DefaultCleanupInterval is how often expired requests are swept
	DefaultCleanupInterval = time.Minute

	// referenceLogLength is the number of reference characters included in logs
	referenceLogLength = 8

	storageType = "memory"
)

// Store is an in-memory implementation of ParRequestStore and ClientStore.
//
// Requests live in a concurrent map whose per-key operations are atomic, so a
// reference is inserted at most once while live and consumed by at most one caller.
type Store struct {
	parRequests *xsync.MapOf[string, *storage.ParRequest]
	clients     *xsync.MapOf[string, *storage.Client]

	// kept separately so the size gauge never walks the map
	parRequestsCount atomic.Int64

	mu              sync.RWMutex
	now             func() time.Time
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

var (
	_ storage.ParRequestStore = (*Store)(nil)
	_ storage.ClientStore     = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, DefaultCleanupInterval is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		parRequests:     xsync.NewMapOf[string, *storage.ParRequest](),
		clients:         xsync.NewMapOf[string, *storage.Client](),
		now:             time.Now,
		logger:          slog.Default(),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the time source used for expiry decisions. Tests use it to
// move time without sleeping.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store and registers
// the request count gauge.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	logger := s.logger
	s.mu.Unlock()

	if inst == nil {
		return
	}
	if err := inst.RegisterStorageSizeCallback(s.parRequestsCount.Load); err != nil {
		logger.Warn("Failed to register storage size callback", "error", err)
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Len returns the number of held requests, including expired ones not yet swept.
func (s *Store) Len() int {
	return int(s.parRequestsCount.Load())
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) log() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// ============================================================
// ParRequestStore Implementation
// ============================================================

// SaveParRequest stores req unless a live request already holds its reference.
// An expired entry under the same reference is replaced.
func (s *Store) SaveParRequest(ctx context.Context, req *storage.ParRequest) error {
	ctx, span := s.startStorageSpan(ctx, "save_par_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_par_request", err, startTime)
	}()

	if req == nil {
		err = fmt.Errorf("pushed authorization request cannot be nil")
		return err
	}
	if req.Reference == "" {
		err = fmt.Errorf("reference cannot be empty")
		return err
	}

	now := s.clock()
	stored := req.Clone()
	exists := false
	inserted := false

	s.parRequests.Compute(req.Reference, func(old *storage.ParRequest, loaded bool) (*storage.ParRequest, bool) {
		if loaded && !old.Expired(now) {
			exists = true
			return old, false
		}
		inserted = !loaded
		return stored, false
	})

	if exists {
		err = fmt.Errorf("%w: %s", storage.ErrParRequestExists, util.SafeTruncate(req.Reference, referenceLogLength))
		return err
	}
	if inserted {
		s.parRequestsCount.Add(1)
	}

	s.log().Debug("Saved pushed authorization request",
		"client_id", req.ClientID,
		"reference_prefix", util.SafeTruncate(req.Reference, referenceLogLength),
		"expires_at", req.ExpiresAt)
	return nil
}

// GetParRequest returns a copy of the request without removing it
func (s *Store) GetParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	ctx, span := s.startStorageSpan(ctx, "get_par_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_par_request", err, startTime)
	}()

	req, ok := s.parRequests.Load(reference)
	if !ok || req.Expired(s.clock()) {
		err = storage.ErrParRequestNotFound
		return nil, err
	}

	return req.Clone(), nil
}

// ConsumeParRequest atomically removes and returns the request.
// An expired entry is removed as well but reported as not found.
func (s *Store) ConsumeParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_par_request")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_par_request", err, startTime)
	}()

	req, ok := s.parRequests.LoadAndDelete(reference)
	if !ok {
		err = storage.ErrParRequestNotFound
		return nil, err
	}
	s.parRequestsCount.Add(-1)

	if req.Expired(s.clock()) {
		err = storage.ErrParRequestNotFound
		return nil, err
	}

	s.log().Debug("Consumed pushed authorization request",
		"client_id", req.ClientID,
		"reference_prefix", util.SafeTruncate(reference, referenceLogLength))
	return req, nil
}

// DeleteParRequest removes the request if present
func (s *Store) DeleteParRequest(ctx context.Context, reference string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_par_request")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_par_request", nil, startTime)
	}()

	if _, ok := s.parRequests.LoadAndDelete(reference); ok {
		s.parRequestsCount.Add(-1)
	}
	return nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	c := *client
	s.clients.Store(client.ClientID, &c)

	s.log().Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	client, ok := s.clients.Load(clientID)
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	c := *client
	return &c, nil
}

// ValidateClientSecret validates a client's secret in constant work regardless of
// whether the client exists.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, lookupErr := s.GetClient(ctx, clientID)
	return storage.VerifyClientSecret(client, lookupErr, clientSecret)
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Cleanup removes every expired request and returns how many were removed.
// Removal rechecks expiry under the per-key lock, so an entry replaced between
// the scan and the delete survives.
func (s *Store) Cleanup() int {
	now := s.clock()

	var expired []string
	s.parRequests.Range(func(reference string, req *storage.ParRequest) bool {
		if req.Expired(now) {
			expired = append(expired, reference)
		}
		return true
	})

	removed := 0
	for _, reference := range expired {
		s.parRequests.Compute(reference, func(old *storage.ParRequest, loaded bool) (*storage.ParRequest, bool) {
			if loaded && old.Expired(now) {
				removed++
				return nil, true
			}
			return old, !loaded
		})
	}

	if removed > 0 {
		s.parRequestsCount.Add(int64(-removed))
		s.log().Debug("Cleaned up expired pushed authorization requests", "count", removed)
	}
	return removed
}

// ============================================================
// Instrumentation Helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()

	if inst == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, result))

	inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
