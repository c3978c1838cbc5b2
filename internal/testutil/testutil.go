package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-par/storage"
)

// Test client fixtures
const (
	TestClientID          = "test-client-id"
	TestClientSecret      = "test-client-secret"
	TestPublicClientID    = "test-public-client"
	TestRedirectURI       = "https://client.example.com/callback"
	TestSecondRedirectURI = "https://client.example.com/alt"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateTestClient creates a confidential client whose secret is TestClientSecret.
// The hash uses bcrypt.MinCost to keep tests fast.
func GenerateTestClient() *storage.Client {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestClientSecret), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("failed to hash test secret: %v", err))
	}
	return &storage.Client{
		ClientID:                TestClientID,
		ClientSecretHash:        string(hash),
		ClientType:              storage.ClientTypeConfidential,
		RedirectURIs:            []string{TestRedirectURI, TestSecondRedirectURI},
		TokenEndpointAuthMethod: "client_secret_basic",
		ResponseTypes:           []string{"code"},
		ClientName:              "Test Client",
		Scopes:                  []string{"openid", "profile", "email"},
		CreatedAt:               time.Now(),
	}
}

// GenerateTestPublicClient creates a public client that authenticates with client_id only
func GenerateTestPublicClient() *storage.Client {
	return &storage.Client{
		ClientID:                TestPublicClientID,
		ClientType:              storage.ClientTypePublic,
		RedirectURIs:            []string{"http://127.0.0.1:8765/callback"},
		TokenEndpointAuthMethod: "none",
		ResponseTypes:           []string{"code"},
		ClientName:              "Test Public Client",
		CreatedAt:               time.Now(),
	}
}

// GenerateTestParRequest creates a request pushed by TestClientID at now with the given TTL
func GenerateTestParRequest(now time.Time, ttl time.Duration) *storage.ParRequest {
	challenge, _ := GeneratePKCEPair()
	return &storage.ParRequest{
		Reference: GenerateRandomString(43),
		ClientID:  TestClientID,
		Parameters: map[string]string{
			"client_id":             TestClientID,
			"response_type":         "code",
			"redirect_uri":          TestRedirectURI,
			"scope":                 "openid profile",
			"state":                 GenerateRandomString(16),
			"code_challenge":        challenge,
			"code_challenge_method": "S256",
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// GenerateRandomString generates a random base64url string of exactly length characters
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid PKCE challenge and verifier pair for testing.
// Returns (challenge, verifier) where challenge is the S256 hash of the verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want any) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertStringContains fails the test if s does not contain substr
func AssertStringContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("string %q does not contain %q", s, substr)
	}
}
