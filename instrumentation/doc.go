// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// pushed authorization request server.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "par-server",
//		ServiceVersion:  "1.0.0",
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//		TracesExporter:  instrumentation.TracesExporterOTLP,
//		OTLPEndpoint:    "otel-collector:4318",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - oauth.http.request.duration{endpoint} - Request duration in milliseconds
//
// Pushed authorization requests:
//   - oauth.par.admitted{client_id} - Requests admitted (201)
//   - oauth.par.rejected{error, kind} - Requests rejected; kind is "client" or "core"
//   - oauth.par.redeemed{result} - request_uri redemptions
//   - oauth.par.reference.collisions - Generated references that were already live
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type} - Rate limit violations
//   - oauth.audit.events.total{event_type} - Audit events
//
// Storage:
//   - storage.operation.total{operation, result} - Storage operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//   - oauth.storage.par_requests.count - Requests currently held (memory backend)
//
// # Distributed Tracing
//
//	oauth.http.par
//	└── oauth.server.admit
//	    ├── storage.get_client
//	    └── storage.save_par_request
//
// # Metric Cardinality
//
// client_id on oauth.par.admitted has one series per registered client. Deployments
// with many thousands of clients should aggregate it away with recording rules.
//
// # Security Considerations
//
// Never record request parameters, client secrets or complete references. Client IP
// addresses are only attached to spans when Config.LogClientIPs is set.
package instrumentation
