// Package client pushes authorization requests to a PAR endpoint (RFC 9126) and builds
// the front-channel authorization URL that references them.
//
// It is configured with a standard *oauth2.Config, so the parameters pushed are the
// ones AuthCodeURL would have put in the query string:
//
//	verifier := oauth2.GenerateVerifier()
//	c := client.New(conf, "https://auth.example.com/oauth/par")
//	resp, err := c.Push(ctx, state, oauth2.S256ChallengeOption(verifier))
//	if err != nil { ... }
//	http.Redirect(w, r, c.AuthCodeURL(resp.RequestURI), http.StatusFound)
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxResponseBytes bounds how much of a PAR response is read
const maxResponseBytes = 1 << 20

// PushResponse is a successful PAR response
type PushResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int64  `json:"expires_in"`

	// Expiry is when the request_uri stops being redeemable, computed on receipt
	Expiry time.Time `json:"-"`
}

// Client pushes authorization requests for one OAuth client.
type Client struct {
	config  *oauth2.Config
	pushURL string
	now     func() time.Time
}

// New creates a client. config.Endpoint.AuthURL is the authorization endpoint that
// redeems request_uri values; pushURL is the PAR endpoint.
//
// Credentials are sent as HTTP Basic unless config.Endpoint.AuthStyle is
// oauth2.AuthStyleInParams. A client without a secret sends client_id only.
func New(config *oauth2.Config, pushURL string) *Client {
	return &Client{
		config:  config,
		pushURL: pushURL,
		now:     time.Now,
	}
}

// Push sends the authorization request and returns the request_uri that stands for it.
//
// Failures reported by the server are returned as *oauth2.RetrieveError carrying the
// OAuth error code and description. The HTTP client is taken from ctx under
// oauth2.HTTPClient, like the rest of x/oauth2.
func (c *Client) Push(ctx context.Context, state string, opts ...oauth2.AuthCodeOption) (*PushResponse, error) {
	form, err := c.pushParameters(state, opts...)
	if err != nil {
		return nil, err
	}

	useBasic := c.config.ClientSecret != "" && c.config.Endpoint.AuthStyle != oauth2.AuthStyleInParams
	if c.config.ClientSecret != "" && !useBasic {
		form.Set("client_secret", c.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create PAR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if useBasic {
		// RFC 6749 section 2.3.1
		req.SetBasicAuth(url.QueryEscape(c.config.ClientID), url.QueryEscape(c.config.ClientSecret))
	}

	resp, err := httpClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("PAR request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read PAR response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, retrieveError(resp, body)
	}

	var pushed PushResponse
	if err := json.Unmarshal(body, &pushed); err != nil {
		return nil, fmt.Errorf("failed to decode PAR response: %w", err)
	}
	if pushed.RequestURI == "" {
		return nil, &oauth2.RetrieveError{Response: resp, Body: body, ErrorDescription: "server response missing request_uri"}
	}
	if pushed.ExpiresIn > 0 {
		pushed.Expiry = c.now().Add(time.Duration(pushed.ExpiresIn) * time.Second)
	}

	return &pushed, nil
}

// AuthCodeURL returns the authorization endpoint URL that redeems requestURI
// (RFC 9126 section 4). Only client_id and request_uri are sent on the front channel.
func (c *Client) AuthCodeURL(requestURI string) string {
	v := url.Values{
		"client_id":   {c.config.ClientID},
		"request_uri": {requestURI},
	}

	authURL := c.config.Endpoint.AuthURL
	if strings.Contains(authURL, "?") {
		return authURL + "&" + v.Encode()
	}
	return authURL + "?" + v.Encode()
}

// pushParameters collects what AuthCodeURL would send, including every option.
func (c *Client) pushParameters(state string, opts ...oauth2.AuthCodeOption) (url.Values, error) {
	u, err := url.Parse(c.config.AuthCodeURL(state, opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization parameters: %w", err)
	}
	form := u.Query()
	if form.Get("state") == "" {
		form.Del("state")
	}
	return form, nil
}

func httpClient(ctx context.Context) *http.Client {
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && hc != nil {
		return hc
	}
	return http.DefaultClient
}

// retrieveError builds the x/oauth2 error type from an RFC 6749 section 5.2 body.
func retrieveError(resp *http.Response, body []byte) error {
	rerr := &oauth2.RetrieveError{Response: resp, Body: body}

	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		var e struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			ErrorURI         string `json:"error_uri"`
		}
		if err := json.Unmarshal(body, &e); err == nil {
			rerr.ErrorCode = e.Error
			rerr.ErrorDescription = e.ErrorDescription
			rerr.ErrorURI = e.ErrorURI
		}
	}

	return rerr
}
