package storage

import (
	"golang.org/x/crypto/bcrypt"
)

// dummySecretHash is compared against when the client does not exist, so unknown and
// known clients cost the same bcrypt work.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// VerifyClientSecret checks secret against the client returned by a lookup.
// lookupErr is the error from that lookup; a non-nil lookupErr always fails, but only
// after the bcrypt comparison has run. Public clients always verify.
//
// Returns ErrInvalidClientCredentials on any failure.
func VerifyClientSecret(client *Client, lookupErr error, secret string) error {
	hashToCompare := dummySecretHash
	isPublicClient := false

	if lookupErr == nil && client != nil {
		if client.IsPublic() {
			isPublicClient = true
		} else if client.ClientSecretHash != "" {
			hashToCompare = client.ClientSecretHash
		}
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(secret))

	if isPublicClient {
		return nil
	}
	if lookupErr != nil || client == nil || client.ClientSecretHash == "" {
		return ErrInvalidClientCredentials
	}
	if bcryptErr != nil {
		return ErrInvalidClientCredentials
	}
	return nil
}

// HashClientSecret returns the bcrypt hash stored in Client.ClientSecretHash.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
