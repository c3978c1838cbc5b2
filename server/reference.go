package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// RequestURIPrefix is the URN namespace for request_uri values (RFC 9126 section 2.2).
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// Generator produces opaque request references. Uniqueness is enforced by the
// store's atomic insert, not by the generator.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws Bytes random bytes and encodes them as unpadded base64url.
type RandomGenerator struct {
	Bytes int

	// Reader is the entropy source (default crypto/rand.Reader)
	Reader io.Reader
}

var _ Generator = (*RandomGenerator)(nil)

// NewRandomGenerator returns a generator of n random bytes, at least MinReferenceBytes.
func NewRandomGenerator(n int) *RandomGenerator {
	if n < MinReferenceBytes {
		n = MinReferenceBytes
	}
	return &RandomGenerator{Bytes: n}
}

// Generate returns a fresh reference.
func (g *RandomGenerator) Generate() (string, error) {
	n := g.Bytes
	if n < MinReferenceBytes {
		n = MinReferenceBytes
	}
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestURI returns the request_uri for reference.
func RequestURI(reference string) string {
	return RequestURIPrefix + reference
}

// ReferenceFromRequestURI extracts the reference from a request_uri.
// Returns ErrInvalidRequestURI if uri does not carry the PAR prefix.
func ReferenceFromRequestURI(uri string) (string, error) {
	reference, ok := strings.CutPrefix(uri, RequestURIPrefix)
	if !ok || reference == "" {
		return "", ErrInvalidRequestURI
	}
	return reference, nil
}
