package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-par/instrumentation"
	"github.com/giantswarm/oauth-par/internal/util"
	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/storage"
)

// Server admits pushed authorization requests and redeems their references.
type Server struct {
	backend         storage.ParRequestStore
	clientStore     storage.ClientStore
	store           *RequestStore
	validator       *Validator
	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	Logger          *slog.Logger
	Config          *Config
}

// New creates a PAR server over backend. clientStore may be nil, in which case
// authenticated clients are trusted as registered and redirect_uri is only checked
// for shape.
func New(
	backend storage.ParRequestStore,
	clientStore storage.ClientStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	srv := &Server{
		backend:     backend,
		clientStore: clientStore,
		validator:   NewValidator(config),
		Config:      config,
		Logger:      logger,
	}
	srv.store = NewRequestStore(backend, NewRandomGenerator(config.ReferenceBytes), RequestStoreConfig{
		TTL:         time.Duration(config.RequestTTL) * time.Second,
		MaxAttempts: config.MaxReferenceAttempts,
		AllowReuse:  config.AllowReuse,
	}, logger)

	if err := srv.validateIssuer(); err != nil {
		return nil, err
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables metrics and tracing. Backends that accept
// instrumentation receive it too.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		s.tracer = nil
		s.store.OnCollision(nil)
		return
	}

	s.tracer = inst.Tracer("server")
	s.store.OnCollision(func(ctx context.Context) {
		inst.Metrics().RecordReferenceCollision(ctx)
	})

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.backend.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
}

// SetEncryptor sets the payload encryptor on backends that support encryption at rest
func (s *Server) SetEncryptor(enc *security.Encryptor) {
	type encryptorSetter interface {
		SetEncryptor(*security.Encryptor)
	}
	if setter, ok := s.backend.(encryptorSetter); ok {
		setter.SetEncryptor(enc)
	}
}

// SetClock replaces the time source used to stamp new requests.
func (s *Server) SetClock(now func() time.Time) {
	s.store.SetClock(now)
}

// SetGenerator replaces the reference generator. Call it before serving requests.
func (s *Server) SetGenerator(g Generator) {
	s.store.SetGenerator(g)
}

// ClientStore returns the client store, or nil
func (s *Server) ClientStore() storage.ClientStore {
	return s.clientStore
}

// ExpiresIn is the lifetime in seconds reported for admitted requests
func (s *Server) ExpiresIn() int64 {
	return s.Config.RequestTTL
}

// Admit decides a pushed authorization request.
//
// The verdict is checked first; only an Authenticated verdict reaches parameter
// validation and storage. raw is flattened so that the first value of each
// parameter wins. The request is stored only when the result is Admitted.
func (s *Server) Admit(ctx context.Context, verdict Verdict, raw url.Values) Result {
	ctx, span := s.startSpan(ctx, "par.admit")
	defer span.End()

	result := s.admit(ctx, span, verdict, raw)
	s.recordAdmission(ctx, span, verdictClientID(verdict), result)
	return result
}

func (s *Server) admit(ctx context.Context, span trace.Span, verdict Verdict, raw url.Values) Result {
	var clientID string

	switch v := normalizeVerdict(verdict).(type) {
	case AuthenticationSystemError:
		code := v.ErrorCode
		if code == "" {
			code = ErrorCodeServerError
		}
		err := v.Err
		if err == nil {
			err = errors.New(v.ErrorMessage)
		}
		return CoreError{Code: code, Description: v.ErrorMessage, Err: err}

	case Unauthenticated:
		switch v.ErrorCode {
		case "":
			return ClientError{Code: ErrorCodeUnauthorizedClient, Description: descClientAuthRequired}
		case ErrorCodeServerError:
			return CoreError{Code: v.ErrorCode, Description: v.ErrorMessage, Err: errors.New(v.ErrorMessage)}
		}
		description := v.ErrorMessage
		if description == "" {
			description = descClientAuthFailed
		}
		return ClientError{Code: v.ErrorCode, Description: description}

	case Authenticated:
		if v.ClientID == "" {
			return newCoreError(errors.New("authenticated verdict without client_id"))
		}
		clientID = v.ClientID

	default:
		return ClientError{Code: ErrorCodeUnauthorizedClient, Description: descClientAuthRequired}
	}

	params := FlattenParameters(raw)
	instrumentation.AddParRequestAttributes(span, clientID, params.Get(ParamResponseType), params.Len())

	var client *storage.Client
	if s.clientStore != nil {
		c, err := s.clientStore.GetClient(ctx, clientID)
		if err != nil {
			if errors.Is(err, storage.ErrClientNotFound) {
				return ClientError{Code: ErrorCodeInvalidClient, Description: descClientAuthFailed}
			}
			return newCoreError(fmt.Errorf("failed to look up client: %w", err))
		}
		client = c
	}

	if r := s.validator.Validate(ctx, &ValidationInput{ClientID: clientID, Client: client, Params: params}); r != nil {
		return ClientError{Code: r.Code, Description: r.Description}
	}

	req, err := s.store.Admit(ctx, clientID, params)
	if err != nil {
		return newCoreError(err)
	}

	return Admitted{
		Reference: req.Reference,
		ExpiresIn: int64(req.TTL() / time.Second),
	}
}

// Retrieve returns the request stored under reference, removing it unless
// AllowReuse is set. Returns storage.ErrParRequestNotFound when it is absent,
// expired or already redeemed.
func (s *Server) Retrieve(ctx context.Context, reference string) (*storage.ParRequest, error) {
	ctx, span := s.startSpan(ctx, "par.retrieve")
	defer span.End()

	req, err := s.store.Retrieve(ctx, reference)
	s.recordRedemption(ctx, span, err)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Redeem resolves a request_uri presented at the authorization endpoint by clientID.
//
// Returns ErrInvalidRequestURI for a malformed URI, storage.ErrParRequestNotFound when
// the request is absent, expired or already redeemed, and ErrClientMismatch when the
// request was pushed by another client. In single-use mode a mismatched redemption
// still consumes the request.
func (s *Server) Redeem(ctx context.Context, requestURI, clientID string) (*storage.ParRequest, error) {
	ctx, span := s.startSpan(ctx, "par.redeem")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, clientID))

	reference, err := ReferenceFromRequestURI(requestURI)
	if err != nil {
		s.recordRedemption(ctx, span, err)
		return nil, err
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrReferencePrefix, util.SafeTruncate(reference, referenceLogLength)))

	req, err := s.store.Retrieve(ctx, reference)
	if err == nil && req.ClientID != clientID {
		err = ErrClientMismatch
	}
	s.recordRedemption(ctx, span, err)

	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogParRedemptionFailed(ctx, clientID, reference, redemptionResult(err))
		}
		if errors.Is(err, storage.ErrParRequestNotFound) || errors.Is(err, ErrClientMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to redeem request_uri: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogParRedeemed(ctx, clientID, reference)
	}
	return req, nil
}

// normalizeVerdict dereferences pointer verdicts so callers may pass either form.
func normalizeVerdict(v Verdict) Verdict {
	switch p := v.(type) {
	case *Authenticated:
		if p != nil {
			return *p
		}
	case *Unauthenticated:
		if p != nil {
			return *p
		}
	case *AuthenticationSystemError:
		if p != nil {
			return *p
		}
	case *NoVerdict:
	default:
		return v
	}
	return NoVerdict{}
}

func verdictClientID(v Verdict) string {
	if a, ok := normalizeVerdict(v).(Authenticated); ok {
		return a.ClientID
	}
	return ""
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return instrumentation.RedemptionSuccess
	case errors.Is(err, storage.ErrParRequestNotFound), errors.Is(err, ErrInvalidRequestURI):
		return instrumentation.RedemptionNotFound
	case errors.Is(err, ErrClientMismatch):
		return instrumentation.RedemptionClientMismatch
	default:
		return instrumentation.RedemptionError
	}
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Server) recordAdmission(ctx context.Context, span trace.Span, clientID string, result Result) {
	ip := security.ClientIPFromContext(ctx)

	switch r := result.(type) {
	case Admitted:
		s.Logger.Info("Admitted pushed authorization request",
			"client_id", clientID,
			"reference_prefix", util.SafeTruncate(r.Reference, referenceLogLength),
			"expires_in", r.ExpiresIn)
		instrumentation.SetSpanAttributes(span,
			attribute.String(instrumentation.AttrAdmissionResult, "admitted"),
			attribute.String(instrumentation.AttrReferencePrefix, util.SafeTruncate(r.Reference, referenceLogLength)),
			attribute.Int64(instrumentation.AttrExpiresIn, r.ExpiresIn))
		instrumentation.SetSpanSuccess(span)
		if s.Auditor != nil {
			s.Auditor.LogParAdmitted(ctx, clientID, ip, r.Reference, r.ExpiresIn)
		}
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordParAdmitted(ctx, clientID)
		}

	case ClientError:
		s.Logger.Debug("Rejected pushed authorization request",
			"client_id", clientID,
			"error", r.Code,
			"error_description", r.Description)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAdmissionResult, "client_error"))
		instrumentation.AddOAuthErrorAttributes(span, r.Code, r.Description)
		if s.Auditor != nil {
			if r.Code == ErrorCodeInvalidClient || (r.Code == ErrorCodeUnauthorizedClient && clientID == "") {
				s.Auditor.LogAuthFailure(ctx, clientID, ip, r.Description)
			} else {
				s.Auditor.LogParRejected(ctx, clientID, ip, r.Code, r.Description)
			}
		}
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordParRejected(ctx, r.Code, instrumentation.RejectionKindClient)
		}

	case CoreError:
		s.Logger.Error("Failed to admit pushed authorization request",
			"client_id", clientID,
			"error", r.Code,
			"error_description", r.Description,
			"cause", r.Err)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAdmissionResult, "core_error"))
		instrumentation.RecordError(span, r)
		if s.Auditor != nil {
			s.Auditor.LogInternalError(ctx, clientID, ip, r)
		}
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordParRejected(ctx, ErrorCodeServerError, instrumentation.RejectionKindCore)
		}
	}
}

func (s *Server) recordRedemption(ctx context.Context, span trace.Span, err error) {
	result := redemptionResult(err)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAdmissionResult, result))

	switch result {
	case instrumentation.RedemptionSuccess:
		instrumentation.SetSpanSuccess(span)
	case instrumentation.RedemptionError:
		instrumentation.RecordError(span, err)
		s.Logger.Error("Failed to retrieve pushed authorization request", "error", err)
	default:
		instrumentation.SetSpanError(span, result)
		s.Logger.Debug("Pushed authorization request not redeemable", "reason", result)
	}

	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordParRedeemed(ctx, result)
	}
}
