package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-par/security"
)

// MaxParRequestDataSize bounds a serialized request held by remote backends.
const MaxParRequestDataSize = 64 * 1024

// parRequestJSON is the wire form used by remote backends.
// Parameters holds the JSON-encoded parameter map, encrypted when an encryptor is set.
type parRequestJSON struct {
	Reference  string `json:"reference"`
	ClientID   string `json:"client_id"`
	Parameters string `json:"parameters"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
}

// MarshalParRequest serializes req for a remote backend, encrypting the parameter
// payload when enc is enabled.
func MarshalParRequest(req *ParRequest, enc *security.Encryptor) ([]byte, error) {
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	payload := string(params)
	if enc != nil && enc.IsEnabled() {
		payload, err = enc.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt parameters: %w", err)
		}
	}

	data, err := json.Marshal(parRequestJSON{
		Reference:  req.Reference,
		ClientID:   req.ClientID,
		Parameters: payload,
		CreatedAt:  req.CreatedAt.UnixNano(),
		ExpiresAt:  req.ExpiresAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pushed authorization request: %w", err)
	}
	if len(data) > MaxParRequestDataSize {
		return nil, fmt.Errorf("pushed authorization request exceeds %d bytes", MaxParRequestDataSize)
	}
	return data, nil
}

// UnmarshalParRequest is the inverse of MarshalParRequest.
func UnmarshalParRequest(data []byte, enc *security.Encryptor) (*ParRequest, error) {
	var j parRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pushed authorization request: %w", err)
	}

	payload := j.Parameters
	if enc != nil && enc.IsEnabled() {
		var err error
		payload, err = enc.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt parameters: %w", err)
		}
	}

	var params map[string]string
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return &ParRequest{
		Reference:  j.Reference,
		ClientID:   j.ClientID,
		Parameters: params,
		CreatedAt:  time.Unix(0, j.CreatedAt),
		ExpiresAt:  time.Unix(0, j.ExpiresAt),
	}, nil
}

// clientJSON is the JSON representation of an OAuth client
type clientJSON struct {
	ClientID                string   `json:"client_id"`
	ClientSecretHash        string   `json:"client_secret_hash,omitempty"`
	ClientType              string   `json:"client_type"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scopes                  []string `json:"scopes,omitempty"`
	CreatedAt               int64    `json:"created_at"`
}

// MarshalClient serializes a client for a remote backend.
func MarshalClient(client *Client) ([]byte, error) {
	data, err := json.Marshal(clientJSON{
		ClientID:                client.ClientID,
		ClientSecretHash:        client.ClientSecretHash,
		ClientType:              client.ClientType,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		ResponseTypes:           client.ResponseTypes,
		ClientName:              client.ClientName,
		Scopes:                  client.Scopes,
		CreatedAt:               client.CreatedAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client: %w", err)
	}
	return data, nil
}

// UnmarshalClient is the inverse of MarshalClient.
func UnmarshalClient(data []byte) (*Client, error) {
	var j clientJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return &Client{
		ClientID:                j.ClientID,
		ClientSecretHash:        j.ClientSecretHash,
		ClientType:              j.ClientType,
		RedirectURIs:            j.RedirectURIs,
		TokenEndpointAuthMethod: j.TokenEndpointAuthMethod,
		ResponseTypes:           j.ResponseTypes,
		ClientName:              j.ClientName,
		Scopes:                  j.Scopes,
		CreatedAt:               time.Unix(j.CreatedAt, 0),
	}, nil
}
