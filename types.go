package par

// PushedAuthorizationResponse is the 201 body of a successful push (RFC 9126 section 2.2)
type PushedAuthorizationResponse struct {
	// RequestURI references the stored request; it is sent to the authorization endpoint
	RequestURI string `json:"request_uri"`

	// ExpiresIn is the lifetime of the request_uri in seconds
	ExpiresIn int64 `json:"expires_in"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points to error documentation
	ErrorURI string `json:"error_uri,omitempty"`
}

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
// with the PAR parameters of RFC 9126 section 5
type AuthorizationServerMetadata struct {
	// Issuer is the authorization server's issuer identifier URL
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint that redeems request_uri values
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`

	// TokenEndpoint is the URL of the token endpoint
	TokenEndpoint string `json:"token_endpoint,omitempty"`

	// PushedAuthorizationRequestEndpoint is the URL of the PAR endpoint
	PushedAuthorizationRequestEndpoint string `json:"pushed_authorization_request_endpoint"`

	// RequirePushedAuthorizationRequests tells clients that only pushed requests are accepted
	RequirePushedAuthorizationRequests bool `json:"require_pushed_authorization_requests"`

	// ScopesSupported lists the OAuth scopes supported
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the OAuth response types supported
	ResponseTypesSupported []string `json:"response_types_supported"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods accepted,
	// which RFC 9126 section 2 applies to the PAR endpoint as well
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods supported
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}
