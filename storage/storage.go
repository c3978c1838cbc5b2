// Package storage defines interfaces for persisting pushed authorization requests and
// the registered clients allowed to push them.
package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// Sentinel errors returned by storage implementations. Implementations wrap them with
// additional context, so callers must compare with errors.Is.
var (
	// ErrParRequestNotFound is returned when a reference is unknown, expired or already consumed.
	ErrParRequestNotFound = errors.New("pushed authorization request not found")

	// ErrParRequestExists is returned by SaveParRequest when the reference is already live.
	ErrParRequestExists = errors.New("pushed authorization request reference already exists")

	// ErrClientNotFound is returned when a client ID is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientCredentials is returned when a client secret does not verify.
	// It is deliberately the same for unknown clients and wrong secrets.
	ErrInvalidClientCredentials = errors.New("invalid client credentials")
)

// ParRequestStore persists pushed authorization requests under their opaque reference.
// All methods accept context.Context for tracing and cancellation.
type ParRequestStore interface {
	// SaveParRequest stores the request only if its reference is not already live.
	// Returns ErrParRequestExists otherwise. The check and the insert are atomic.
	SaveParRequest(ctx context.Context, req *ParRequest) error

	// GetParRequest returns the request without removing it.
	// Returns ErrParRequestNotFound when absent or expired.
	GetParRequest(ctx context.Context, reference string) (*ParRequest, error)

	// ConsumeParRequest atomically returns and removes the request. Of any number of
	// concurrent callers for the same reference, at most one succeeds.
	// Returns ErrParRequestNotFound when absent or expired.
	ConsumeParRequest(ctx context.Context, reference string) (*ParRequest, error)

	// DeleteParRequest removes the request if present.
	DeleteParRequest(ctx context.Context, reference string) error
}

// ClientStore defines the interface for looking up registered OAuth clients.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret validates a client's secret
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// Client types
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Client represents a registered OAuth client
type Client struct {
	ClientID                string
	ClientSecretHash        string // bcrypt hash
	ClientType              string // "public" or "confidential"
	RedirectURIs            []string
	TokenEndpointAuthMethod string
	ResponseTypes           []string
	ClientName              string
	Scopes                  []string
	CreatedAt               time.Time
}

// IsPublic reports whether the client authenticates without a secret.
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// HasRedirectURI reports whether uri is registered for the client (exact match).
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// ParRequest is a pushed authorization request held until redemption or expiry.
type ParRequest struct {
	// Reference is the opaque identifier embedded in the request_uri.
	Reference string

	// ClientID is the authenticated client that pushed the request.
	ClientID string

	// Parameters are the flattened authorization request parameters.
	Parameters map[string]string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the request is no longer retrievable at now.
// A request is expired from the instant now reaches ExpiresAt.
func (r *ParRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TTL returns the lifetime the request was created with.
func (r *ParRequest) TTL() time.Duration {
	return r.ExpiresAt.Sub(r.CreatedAt)
}

// Clone returns a deep copy so stored entries never share a parameter map with callers.
func (r *ParRequest) Clone() *ParRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Parameters = maps.Clone(r.Parameters)
	return &c
}
