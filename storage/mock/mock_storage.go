// Package mock provides mock implementations of storage interfaces for testing.
//
// Each mock is backed by a map and behaves like a real store by default. Tests
// override individual operations by replacing the corresponding Func field, for
// example to inject a backend failure or force a reference collision.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/oauth-par/storage"
)

// MockParRequestStore is a mock implementation of ParRequestStore for testing
type MockParRequestStore struct {
	mu       sync.Mutex
	requests map[string]*storage.ParRequest
	now      func() time.Time

	SaveFunc    func(ctx context.Context, req *storage.ParRequest) error
	GetFunc     func(ctx context.Context, reference string) (*storage.ParRequest, error)
	ConsumeFunc func(ctx context.Context, reference string) (*storage.ParRequest, error)
	DeleteFunc  func(ctx context.Context, reference string) error

	CallCounts map[string]int
}

var _ storage.ParRequestStore = (*MockParRequestStore)(nil)

// NewMockParRequestStore creates a new mock request store
func NewMockParRequestStore() *MockParRequestStore {
	m := &MockParRequestStore{
		requests:   make(map[string]*storage.ParRequest),
		now:        time.Now,
		CallCounts: make(map[string]int),
	}

	m.SaveFunc = func(_ context.Context, req *storage.ParRequest) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.requests[req.Reference]; ok && !existing.Expired(m.now()) {
			return storage.ErrParRequestExists
		}
		m.requests[req.Reference] = req.Clone()
		return nil
	}

	m.GetFunc = func(_ context.Context, reference string) (*storage.ParRequest, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		req, ok := m.requests[reference]
		if !ok || req.Expired(m.now()) {
			return nil, storage.ErrParRequestNotFound
		}
		return req.Clone(), nil
	}

	m.ConsumeFunc = func(_ context.Context, reference string) (*storage.ParRequest, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		req, ok := m.requests[reference]
		if !ok {
			return nil, storage.ErrParRequestNotFound
		}
		delete(m.requests, reference)
		if req.Expired(m.now()) {
			return nil, storage.ErrParRequestNotFound
		}
		return req, nil
	}

	m.DeleteFunc = func(_ context.Context, reference string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.requests, reference)
		return nil
	}

	return m
}

// SetClock replaces the time source used by the default implementations
func (m *MockParRequestStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Len returns the number of stored entries, expired ones included
func (m *MockParRequestStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Calls returns how often the named operation was invoked
func (m *MockParRequestStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[op]
}

func (m *MockParRequestStore) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[op]++
}

// SaveParRequest implements storage.ParRequestStore
func (m *MockParRequestStore) SaveParRequest(ctx context.Context, req *storage.ParRequest) error {
	m.count("SaveParRequest")
	if req == nil {
		return errors.New("invalid pushed authorization request")
	}
	return m.SaveFunc(ctx, req)
}

// GetParRequest implements storage.ParRequestStore
func (m *MockParRequestStore) GetParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	m.count("GetParRequest")
	return m.GetFunc(ctx, reference)
}

// ConsumeParRequest implements storage.ParRequestStore
func (m *MockParRequestStore) ConsumeParRequest(ctx context.Context, reference string) (*storage.ParRequest, error) {
	m.count("ConsumeParRequest")
	return m.ConsumeFunc(ctx, reference)
}

// DeleteParRequest implements storage.ParRequestStore
func (m *MockParRequestStore) DeleteParRequest(ctx context.Context, reference string) error {
	m.count("DeleteParRequest")
	return m.DeleteFunc(ctx, reference)
}

// MockClientStore is a mock implementation of ClientStore for testing
type MockClientStore struct {
	mu      sync.RWMutex
	clients map[string]*storage.Client

	SaveClientFunc           func(ctx context.Context, client *storage.Client) error
	GetClientFunc            func(ctx context.Context, clientID string) (*storage.Client, error)
	ValidateClientSecretFunc func(ctx context.Context, clientID, clientSecret string) error

	CallCounts map[string]int
}

var _ storage.ClientStore = (*MockClientStore)(nil)

// NewMockClientStore creates a new mock client store
func NewMockClientStore() *MockClientStore {
	m := &MockClientStore{
		clients:    make(map[string]*storage.Client),
		CallCounts: make(map[string]int),
	}

	m.SaveClientFunc = func(_ context.Context, client *storage.Client) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		c := *client
		m.clients[client.ClientID] = &c
		return nil
	}

	m.GetClientFunc = func(_ context.Context, clientID string) (*storage.Client, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		client, ok := m.clients[clientID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		c := *client
		return &c, nil
	}

	m.ValidateClientSecretFunc = func(ctx context.Context, clientID, clientSecret string) error {
		client, lookupErr := m.GetClientFunc(ctx, clientID)
		return storage.VerifyClientSecret(client, lookupErr, clientSecret)
	}

	return m
}

func (m *MockClientStore) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[op]++
}

// Calls returns how often the named operation was invoked
func (m *MockClientStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[op]
}

// SaveClient implements storage.ClientStore
func (m *MockClientStore) SaveClient(ctx context.Context, client *storage.Client) error {
	m.count("SaveClient")
	if client == nil || client.ClientID == "" {
		return errors.New("invalid client")
	}
	return m.SaveClientFunc(ctx, client)
}

// GetClient implements storage.ClientStore
func (m *MockClientStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.count("GetClient")
	return m.GetClientFunc(ctx, clientID)
}

// ValidateClientSecret implements storage.ClientStore
func (m *MockClientStore) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	m.count("ValidateClientSecret")
	return m.ValidateClientSecretFunc(ctx, clientID, clientSecret)
}
