package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Rejection kinds recorded on oauth.par.rejected
const (
	RejectionKindClient = "client"
	RejectionKindCore   = "core"
)

// Redemption results recorded on oauth.par.redeemed
const (
	RedemptionSuccess        = "success"
	RedemptionNotFound       = "not_found"
	RedemptionClientMismatch = "client_mismatch"
	RedemptionError          = "error"
)

// Metrics holds all metric instruments
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Pushed Authorization Request Metrics
	ParAdmitted           metric.Int64Counter
	ParRejected           metric.Int64Counter
	ParRedeemed           metric.Int64Counter
	ParReferenceCollision metric.Int64Counter

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageParRequestsCount  metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"oauth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.ParAdmitted, err = serverMeter.Int64Counter(
		"oauth.par.admitted",
		metric.WithDescription("Number of pushed authorization requests admitted"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create par.admitted counter: %w", err)
	}

	m.ParRejected, err = serverMeter.Int64Counter(
		"oauth.par.rejected",
		metric.WithDescription("Number of pushed authorization requests rejected, by error code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create par.rejected counter: %w", err)
	}

	m.ParRedeemed, err = serverMeter.Int64Counter(
		"oauth.par.redeemed",
		metric.WithDescription("Number of request_uri redemptions, by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create par.redeemed counter: %w", err)
	}

	m.ParReferenceCollision, err = serverMeter.Int64Counter(
		"oauth.par.reference.collisions",
		metric.WithDescription("Number of generated references that collided with a live entry"),
		metric.WithUnit("{collision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create par.reference.collisions counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"oauth.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageParRequestsCount, err = storageMeter.Int64ObservableGauge(
		"oauth.storage.par_requests.count",
		metric.WithDescription("Number of pushed authorization requests currently held"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.par_requests.count gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordParAdmitted records an admitted pushed authorization request
func (m *Metrics) RecordParAdmitted(ctx context.Context, clientID string) {
	m.ParAdmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordParRejected records a rejected pushed authorization request.
// kind is RejectionKindClient or RejectionKindCore.
func (m *Metrics) RecordParRejected(ctx context.Context, errorCode, kind string) {
	m.ParRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error", errorCode),
		attribute.String("kind", kind),
	))
}

// RecordParRedeemed records a redemption attempt
func (m *Metrics) RecordParRedeemed(ctx context.Context, result string) {
	m.ParRedeemed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordReferenceCollision records a reference collision that forced a retry
func (m *Metrics) RecordReferenceCollision(ctx context.Context) {
	m.ParReferenceCollision.Add(ctx, 1)
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
