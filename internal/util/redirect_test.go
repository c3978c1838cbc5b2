package util

import (
	"errors"
	"testing"
)

func TestValidateRedirectURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{"https", "https://client.example.com/cb", nil},
		{"https with query", "https://client.example.com/cb?tenant=a", nil},
		{"http localhost", "http://localhost:8080/cb", nil},
		{"http loopback v4", "http://127.0.0.1:5000/cb", nil},
		{"http loopback v6", "http://[::1]:5000/cb", nil},
		{"private-use scheme", "com.example.app:/oauth2redirect", nil},
		{"http public host", "http://client.example.com/cb", ErrRedirectURIInsecure},
		{"http unspecified", "http://0.0.0.0/cb", ErrRedirectURIInsecure},
		{"relative", "/cb", ErrRedirectURINotAbsolute},
		{"empty", "", ErrRedirectURINotAbsolute},
		{"fragment", "https://client.example.com/cb#frag", ErrRedirectURIFragment},
		{"https without host", "https:///cb", ErrRedirectURINotAbsolute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedirectURI(tt.uri)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRedirectURI(%q) error = %v, want nil", tt.uri, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRedirectURI(%q) error = %v, want %v", tt.uri, err, tt.wantErr)
			}
		})
	}
}

func TestIsLoopbackHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		expected bool
	}{
		{"localhost", "localhost", true},
		{"IPv4 loopback", "127.0.0.1", true},
		{"IPv4 loopback range", "127.255.255.255", true},
		{"IPv6 loopback", "::1", true},
		{"IPv6 loopback bracketed", "[::1]", true},
		{"IPv4 private", "10.0.0.1", false},
		{"Unspecified", "0.0.0.0", false},
		{"Public hostname", "example.com", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsLoopbackHostname(tt.hostname)
			if got != tt.expected {
				t.Errorf("IsLoopbackHostname(%s) = %v, want %v", tt.hostname, got, tt.expected)
			}
		})
	}
}
