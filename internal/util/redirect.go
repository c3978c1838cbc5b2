package util

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Redirect URI registration errors
var (
	ErrRedirectURINotAbsolute = errors.New("redirect URI must be an absolute URI")
	ErrRedirectURIFragment    = errors.New("redirect URI must not contain a fragment")
	ErrRedirectURIInsecure    = errors.New("redirect URI must use https unless the host is loopback")
)

// ValidateRedirectURI checks that uri may be registered for a client.
//
// RFC 6749 section 3.1.2 requires an absolute URI without a fragment. http is
// only accepted for loopback hosts (RFC 8252 section 7.3); private-use schemes
// such as com.example.app:/callback are accepted for native clients.
func ValidateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedirectURINotAbsolute, err)
	}
	if !parsed.IsAbs() {
		return ErrRedirectURINotAbsolute
	}
	if parsed.Fragment != "" || parsed.RawFragment != "" {
		return ErrRedirectURIFragment
	}

	switch parsed.Scheme {
	case "https":
		if parsed.Host == "" {
			return ErrRedirectURINotAbsolute
		}
	case "http":
		if !IsLoopbackHostname(parsed.Hostname()) {
			return ErrRedirectURIInsecure
		}
	}
	return nil
}

// IsLoopbackHostname reports whether hostname is localhost or a loopback IP.
// It covers all of 127.0.0.0/8 and ::1, with or without IPv6 brackets.
// 0.0.0.0 is unspecified, not loopback.
func IsLoopbackHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}

	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(clean); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
