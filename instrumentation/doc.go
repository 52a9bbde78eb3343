// Package instrumentation provides OpenTelemetry metrics and tracing for
// the authorization server. When disabled it wires no-op providers, so
// embedders that do not care about observability pay nothing.
package instrumentation
