// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for lifeassist.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route and status
//   - active_sessions: signed-in browser sessions
//
// Remote APIs (calendar, oauth, userinfo, anthropic):
//   - remote_api_operations_total, remote_api_operation_duration_seconds
//
// Authentication:
//   - oauth_sign_in_total by result
//   - oauth_token_refresh_total by result
//   - session_restore_total by outcome
//
// Credential store:
//   - credential_store_operations_total, credential_store_operation_duration_seconds
//
// MCP tools and assistant:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//   - assistant_tokens_total by model and direction
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: lifeassist)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordRemoteOperation(ctx, instrumentation.ServiceCalendar,
//		instrumentation.OperationList, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
