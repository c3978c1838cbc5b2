package par

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-par/instrumentation"
	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/server"
)

const (
	// ParamClientID and ParamClientSecret carry client_secret_post credentials
	ParamClientID     = server.ParamClientID
	ParamClientSecret = "client_secret"

	// MetadataPath is the RFC 8414 well-known path
	MetadataPath = "/.well-known/oauth-authorization-server"

	formContentType = "application/x-www-form-urlencoded"
	retryAfter      = "60"
)

// Handler is a thin HTTP adapter for the PAR Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server        *server.Server
	authenticator ClientAuthenticator
	logger        *slog.Logger
	tracer        trace.Tracer // OpenTelemetry tracer for HTTP layer

	// RateLimiter limits requests per client IP. Nil disables rate limiting.
	RateLimiter *security.RateLimiter
}

// NewHandler creates a new HTTP handler. A nil authenticator authenticates against
// the server's client store when it has one and otherwise takes verdicts from the
// request context (see ContextWithVerdict).
func NewHandler(srv *server.Server, authenticator ClientAuthenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	if authenticator == nil {
		if store := srv.ClientStore(); store != nil {
			authenticator = NewSecretAuthenticator(store, logger)
		} else {
			authenticator = ContextAuthenticator{}
		}
	}

	h := &Handler{
		server:        srv,
		authenticator: authenticator,
		logger:        logger,
	}

	// Initialize tracer if instrumentation is enabled
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// SetRateLimiter sets the per-IP rate limiter
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.RateLimiter = rl
}

// RegisterRoutes registers the PAR endpoint and the metadata endpoints on mux.
// Every route gets an X-Request-ID.
//
// With a path-based issuer such as https://auth.example.com/tenant1 the metadata is
// also served at /.well-known/oauth-authorization-server/tenant1 (RFC 8414 section 3).
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	cfg := h.server.Config

	mux.Handle(cfg.ParEndpointPath,
		security.RequestIDMiddleware(http.HandlerFunc(h.ServePushedAuthorizationRequest)))

	metadata := security.RequestIDMiddleware(http.HandlerFunc(h.ServeAuthorizationServerMetadata))
	mux.Handle(MetadataPath, metadata)

	if issuerPath := h.extractIssuerPath(); issuerPath != "" {
		mux.Handle(MetadataPath+issuerPath, metadata)
		h.logger.Info("Registered PAR routes",
			"par_endpoint", cfg.ParEndpointPath,
			"metadata_endpoint", MetadataPath,
			"metadata_path_insert", MetadataPath+issuerPath)
		return
	}

	h.logger.Info("Registered PAR routes",
		"par_endpoint", cfg.ParEndpointPath,
		"metadata_endpoint", MetadataPath)
}

// extractIssuerPath returns the cleaned path of the issuer URL, or "" when it has none.
// Example: "https://auth.example.com/tenant1" -> "/tenant1"
func (h *Handler) extractIssuerPath() string {
	parsed, err := url.Parse(h.server.Config.Issuer)
	if err != nil {
		h.logger.Warn("Failed to parse issuer URL for path extraction",
			"issuer", h.server.Config.Issuer,
			"error", err)
		return ""
	}

	cleanedPath := path.Clean(parsed.Path)
	if cleanedPath == "" || cleanedPath == "/" || cleanedPath == "." {
		return ""
	}
	return cleanedPath
}

// ServePushedAuthorizationRequest handles POST requests to the PAR endpoint (RFC 9126 section 2).
//
// Only the form-encoded body is read; query parameters never reach admission. A
// successful push is answered with 201 and the request_uri.
func (h *Handler) ServePushedAuthorizationRequest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "http.pushed_authorization_request")
	defer span.End()

	rw := &statusRecorder{ResponseWriter: w}
	defer func() {
		h.recordHTTPRequest(ctx, span, r.Method, h.server.Config.ParEndpointPath, rw.statusCode(), startTime)
	}()

	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("Panic while handling pushed authorization request",
				"panic", p,
				"request_id", security.GetRequestID(ctx))
			if !rw.wroteHeader {
				h.writeOAuthError(rw, ErrServerError(), false)
			}
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.server.Config
	clientIP := security.GetClientIP(r, cfg.TrustProxy, cfg.TrustedProxyCount)
	ctx = security.WithClientIP(ctx, clientIP)
	if h.server.Instrumentation != nil && h.server.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, clientIP)
	}

	if h.checkIPRateLimit(ctx, rw, clientIP, cfg.ParEndpointPath) {
		return
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != formContentType {
		h.writeOAuthError(rw, ErrInvalidRequest("Content-Type must be "+formContentType), false)
		return
	}

	r.Body = http.MaxBytesReader(rw, r.Body, cfg.MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.logger.Debug("Pushed authorization request body too large", "limit", maxBytesErr.Limit, "ip", clientIP)
			h.writeOAuthError(rw, NewOAuthError(ErrorCodeInvalidRequest, "Request body too large", http.StatusRequestEntityTooLarge), false)
			return
		}
		h.writeOAuthError(rw, ErrInvalidRequest("Failed to parse request"), false)
		return
	}

	r = r.WithContext(ctx)
	_, _, usedBasic := r.BasicAuth()

	verdict := h.authenticator.Authenticate(r)
	result := h.server.Admit(ctx, verdict, withoutClientCredentials(r.PostForm))

	if admitted, ok := result.(server.Admitted); ok {
		h.writePushedAuthorizationResponse(rw, admitted)
		return
	}
	h.writeOAuthError(rw, ToOAuthError(result), usedBasic)
}

// clientCredentialParams authenticate the client and are never stored with the request.
var clientCredentialParams = []string{ParamClientSecret, "client_assertion", "client_assertion_type"}

// withoutClientCredentials returns a copy of form without clientCredentialParams.
func withoutClientCredentials(form url.Values) url.Values {
	params := make(url.Values, len(form))
	for name, values := range form {
		params[name] = values
	}
	for _, name := range clientCredentialParams {
		delete(params, name)
	}
	return params
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(ctx context.Context, w http.ResponseWriter, clientIP, endpoint string) bool {
	if h.RateLimiter == nil || h.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, "ip")
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(ctx, clientIP, endpoint)
	}

	w.Header().Set("Retry-After", retryAfter)
	h.writeOAuthError(w, ErrRateLimitExceeded(), false)
	return true
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
// including the PAR parameters of RFC 9126 section 5.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "http.authorization_server_metadata")
	defer span.End()

	rw := &statusRecorder{ResponseWriter: w}
	defer func() {
		h.recordHTTPRequest(ctx, span, r.Method, MetadataPath, rw.statusCode(), startTime)
	}()

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.server.Config
	clientIP := security.GetClientIP(r, cfg.TrustProxy, cfg.TrustedProxyCount)
	if h.checkIPRateLimit(ctx, rw, clientIP, MetadataPath) {
		return
	}

	security.SetSecurityHeaders(rw, cfg.Issuer)
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(h.BuildMetadata())
}

// BuildMetadata builds the authorization server metadata document
func (h *Handler) BuildMetadata() AuthorizationServerMetadata {
	cfg := h.server.Config

	challengeMethods := []string{server.PKCEMethodS256}
	if cfg.AllowPKCEPlain {
		challengeMethods = append(challengeMethods, server.PKCEMethodPlain)
	}

	metadata := AuthorizationServerMetadata{
		Issuer:                             cfg.Issuer,
		AuthorizationEndpoint:              cfg.AuthorizationEndpoint,
		TokenEndpoint:                      cfg.TokenEndpoint,
		PushedAuthorizationRequestEndpoint: cfg.Issuer + cfg.ParEndpointPath,
		RequirePushedAuthorizationRequests: cfg.RequirePushedAuthorizationRequests,
		ScopesSupported:                    cfg.SupportedScopes,
		ResponseTypesSupported:             cfg.SupportedResponseTypes,
		CodeChallengeMethodsSupported:      challengeMethods,
	}

	if m, ok := h.authenticator.(interface{ Methods() []string }); ok {
		metadata.TokenEndpointAuthMethodsSupported = m.Methods()
	}

	return metadata
}

func (h *Handler) writePushedAuthorizationResponse(w http.ResponseWriter, admitted server.Admitted) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(PushedAuthorizationResponse{
		RequestURI: admitted.RequestURI(),
		ExpiresIn:  admitted.ExpiresIn,
	})
}

// writeOAuthError writes an RFC 6749 section 5.2 error body. A 401 answering a
// client_secret_basic attempt carries a Basic challenge (RFC 6749 section 5.2).
func (h *Handler) writeOAuthError(w http.ResponseWriter, oauthErr *OAuthError, usedBasic bool) {
	if oauthErr == nil {
		oauthErr = ErrServerError()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if oauthErr.Status == http.StatusUnauthorized && usedBasic {
		w.Header().Set("WWW-Authenticate", `Basic realm="`+h.server.Config.Issuer+`"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oauthErr.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) recordHTTPRequest(ctx context.Context, span trace.Span, method, endpoint string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(span, method, endpoint, status)
	if h.server.Instrumentation == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, durationMs)
}

// statusRecorder remembers the status code written through it
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) statusCode() int {
	if !r.wroteHeader {
		return http.StatusOK
	}
	return r.status
}
