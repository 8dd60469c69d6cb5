// Package observability wraps a process-wide structured logger, Prometheus
// metrics, and an OpenTelemetry tracer for the engine's entrypoint (C10),
// Block Runner (C3), and TTS Orchestrator (C7) to report through.
//
// Example:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	metrics := observability.NewMetrics()
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "mdflow-engine"})
//	defer shutdown(context.Background())
//
//	ctx = observability.AddRequestID(ctx, requestID)
//	ctx, span := tracer.TraceLLMRequest(ctx, provider, model)
//	defer span.End()
//	logger.Info(ctx, "llm request started", "provider", provider, "model", model)
package observability
