// Package otel provides OpenTelemetry instrumentation for TicketPilot.
// Metrics and spans use the global providers; exporter wiring is left to
// the deployment environment.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Deployments that need an
// OTLP exporter install their own TracerProvider before calling this.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel tracer using global provider", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
