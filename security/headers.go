package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the response headers required on every PAR and metadata
// response. Responses carry request_uri values and must never be cached.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// RFC 9126 section 2.2: the response must not be stored by intermediaries.
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
