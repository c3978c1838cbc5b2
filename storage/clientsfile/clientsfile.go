// Package clientsfile loads a static registry of OAuth clients from YAML and seeds it
// into a storage.ClientStore.
//
// Example file:
//
//	clients:
//	  - client_id: web-app
//	    client_name: Web App
//	    client_type: confidential
//	    client_secret: ${WEB_APP_SECRET}
//	    redirect_uris:
//	      - https://app.example.com/callback
//	    scopes: [openid, profile]
//	  - client_id: cli
//	    client_type: public
//	    redirect_uris:
//	      - http://127.0.0.1:8765/callback
//
// Load expands environment variables in client_secret values only; every other field,
// client_secret_hash included, is taken literally. Plain secrets are hashed with bcrypt
// on load; a pre-computed hash can be supplied as client_secret_hash instead.
package clientsfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/storage"
)

// File is the top-level document.
type File struct {
	Clients []ClientConfig `yaml:"clients" validate:"required,min=1,dive"`
}

// ClientConfig is one registered client.
type ClientConfig struct {
	ClientID                string   `yaml:"client_id" validate:"required,max=255"`
	ClientName              string   `yaml:"client_name"`
	ClientType              string   `yaml:"client_type" validate:"omitempty,oneof=public confidential"`
	ClientSecret            string   `yaml:"client_secret"`
	ClientSecretHash        string   `yaml:"client_secret_hash"`
	TokenEndpointAuthMethod string   `yaml:"token_endpoint_auth_method" validate:"omitempty,oneof=none client_secret_basic client_secret_post"`
	RedirectURIs            []string `yaml:"redirect_uris" validate:"required,min=1,dive,required"`
	ResponseTypes           []string `yaml:"response_types"`
	Scopes                  []string `yaml:"scopes"`
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate
}

// Load reads and validates the registry at path.
func Load(path string) ([]*storage.Client, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parse(content, os.ExpandEnv)
}

// Parse decodes and validates a registry document. No environment expansion is done.
func Parse(data []byte) ([]*storage.Client, error) {
	return parse(data, nil)
}

func parse(data []byte, expandSecret func(string) string) ([]*storage.Client, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode clients file: %w", err)
	}
	if expandSecret != nil {
		for i := range f.Clients {
			f.Clients[i].ClientSecret = expandSecret(f.Clients[i].ClientSecret)
		}
	}

	if err := newValidator().Struct(&f); err != nil {
		return nil, fmt.Errorf("validate clients file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Clients))
	clients := make([]*storage.Client, 0, len(f.Clients))
	for i := range f.Clients {
		cc := &f.Clients[i]
		if _, dup := seen[cc.ClientID]; dup {
			return nil, fmt.Errorf("duplicate client_id %q", cc.ClientID)
		}
		seen[cc.ClientID] = struct{}{}

		client, err := cc.toClient()
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cc.ClientID, err)
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func (cc *ClientConfig) toClient() (*storage.Client, error) {
	for _, uri := range cc.RedirectURIs {
		if err := util.ValidateRedirectURI(uri); err != nil {
			return nil, fmt.Errorf("redirect_uri %q: %w", uri, err)
		}
	}

	clientType := cc.ClientType
	if clientType == "" {
		clientType = storage.ClientTypeConfidential
		if cc.ClientSecret == "" && cc.ClientSecretHash == "" {
			clientType = storage.ClientTypePublic
		}
	}

	client := &storage.Client{
		ClientID:                cc.ClientID,
		ClientType:              clientType,
		ClientName:              cc.ClientName,
		RedirectURIs:            cc.RedirectURIs,
		TokenEndpointAuthMethod: cc.TokenEndpointAuthMethod,
		ResponseTypes:           cc.ResponseTypes,
		Scopes:                  cc.Scopes,
		CreatedAt:               time.Now(),
	}
	if len(client.ResponseTypes) == 0 {
		client.ResponseTypes = []string{"code"}
	}

	switch clientType {
	case storage.ClientTypePublic:
		if cc.ClientSecret != "" || cc.ClientSecretHash != "" {
			return nil, errors.New("public clients must not have a secret")
		}
		if client.TokenEndpointAuthMethod == "" {
			client.TokenEndpointAuthMethod = "none"
		}
	case storage.ClientTypeConfidential:
		switch {
		case cc.ClientSecretHash != "":
			client.ClientSecretHash = cc.ClientSecretHash
		case cc.ClientSecret != "":
			hash, err := storage.HashClientSecret(cc.ClientSecret)
			if err != nil {
				return nil, fmt.Errorf("hash secret: %w", err)
			}
			client.ClientSecretHash = hash
		default:
			return nil, errors.New("confidential clients need client_secret or client_secret_hash")
		}
		if client.TokenEndpointAuthMethod == "" {
			client.TokenEndpointAuthMethod = "client_secret_basic"
		}
		if client.TokenEndpointAuthMethod == "none" {
			return nil, errors.New("confidential clients cannot use token_endpoint_auth_method none")
		}
	}

	return client, nil
}

// Seed saves every client into store.
func Seed(ctx context.Context, store storage.ClientStore, clients []*storage.Client) error {
	for _, c := range clients {
		if err := store.SaveClient(ctx, c); err != nil {
			return fmt.Errorf("seed client %q: %w", c.ClientID, err)
		}
	}
	return nil
}

// LoadAndSeed is Load followed by Seed. It returns the number of clients seeded.
func LoadAndSeed(ctx context.Context, path string, store storage.ClientStore) (int, error) {
	clients, err := Load(path)
	if err != nil {
		return 0, err
	}
	if err := Seed(ctx, store, clients); err != nil {
		return 0, err
	}
	return len(clients), nil
}
