// Package telemetry provides comprehensive observability instrumentation for odoodrift.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging odoodrift operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "odoodrift"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("applier")
//	logger = logger.WithRunID("run-123").WithRecordID("42")
//	logger.Info("Applying record")
//	logger.WithError(err).Error("Apply failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("record.id", recordID),
//	    attribute.String("operation", "create"),
//	)
//
//	// Record events
//	span.AddEvent("validation.complete")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	// Record an apply run
//	tel.Metrics.RecordRunStarted("alice@example.com")
//	tel.Metrics.RecordRunCompleted("succeeded", duration)
//
//	// Record a single plan operation
//	tel.Metrics.RecordOperationExecution("create", "succeeded", duration, "res.partner")
//
//	// Record JSON-RPC calls to the Odoo server
//	tel.Metrics.RecordRPCCall("execute_kw", "search_read", duration)
//
//	// Record errors
//	tel.Metrics.RecordError("transient", "TIMEOUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishRunStarted(runID, user)
//	tel.Events.PublishOperationCompleted(runID, operationID, recordID, duration)
//	tel.Events.PublishDriftDetected(recordID, driftCount)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByRecordID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "plan.execute",
//	    attribute.String("plan.id", planID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Executing plan")
//
//	// Run context
//	ctx = telemetry.WithRunContext(ctx, runID, user)
//	defer telemetry.EndRunContext(ctx, runID, status, err)
//
//	// Operation context
//	ctx = telemetry.WithOperationContext(ctx, runID, operationID, recordID, operation)
//	defer telemetry.EndOperationContext(ctx, runID, operationID, recordID, operation, status, err)
//
//	// JSON-RPC call
//	err := telemetry.RecordRPCOperation(ctx, "execute_kw", "search_read", func() error {
//	    return client.ExecuteKw(ctx, model, "search_read", args, kwargs, &out)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "odoodrift",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Performance Considerations
//
// The telemetry system is designed for minimal overhead:
//
//  - Structured logging uses zerolog's zero-allocation approach
//  - Tracing uses sampling to reduce data volume in production
//  - Metrics use Prometheus's efficient storage format
//  - Events are buffered and batched to reduce I/O
//  - All operations are non-blocking when possible
//
// Typical overhead: <1% CPU, <10MB memory for moderate workloads
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are handed to subscribers
//  - All pending traces are exported
//
// Shutdown does not stop the metrics server; it keeps serving until the
// process exits.
//
// # Integration with the odoodrift engine
//
// Two parts of odoodrift use telemetry when it is in the context:
//
//  1. Apply runs: the CLI's apply command wraps each run in
//     WithRunContext/EndRunContext for run-level tracing and metrics
//  2. RPC calls: the rpc client wraps every execute_kw call in
//     RecordRPCOperation for call tracking
//
// The planner, applier, drift check and policy engine do not call this
// package; the per-operation, drift and policy-violation helpers here are
// not invoked anywhere in odoodrift.
//
// # Exporters
//
// Tracing supports multiple exporters:
//
//  - "stdout": Print traces to stdout (development)
//  - "otlp": Export via OTLP/gRPC (production, works with collectors)
//  - "none": Generate traces but don't export (testing)
//
// Configure via TracingConfig.Exporter and TracingConfig.Endpoint
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - odoodrift_runs_started_total{user}
//  - odoodrift_runs_completed_total{status}
//  - odoodrift_run_duration_seconds{status}
//  - odoodrift_operations_executed_total{operation,status}
//  - odoodrift_operation_duration_seconds{operation,record_model}
//  - odoodrift_rpc_calls_total{method,operation}
//  - odoodrift_rpc_call_duration_seconds{method,operation}
//  - odoodrift_errors_by_class_total{class}
//  - odoodrift_drift_detections_total{model,status}
//  - odoodrift_active_runs
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Monitor telemetry overhead in production
//  8. Configure sampling for high-volume systems
//  9. Always call defer span.End() after starting a span
//  10. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, session ids, API keys)
//  - Sanitize record ids if they contain PII
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
//  - Consider event data before adding to audit logs
//
package telemetry
