// Package observability wires OpenTelemetry metrics and tracing for the
// statement proxy, connection reconnects and name lookups.
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("resilix"))
//	metrics.RecordRetry(ctx, "mysql", "2006")
//
// A nil *Metrics is valid and records nothing.
//
// Tracing:
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanStatementExec)
//	defer span.End()
package observability
