// Package observability provides OpenTelemetry tracing and metrics for
// pipeline stages.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("screenlight")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanStageRun)
//	defer func() { observability.EndSpan(span, err) }()
//
// Metrics:
//
//	cfg := observability.DefaultMeterConfig("screenlight")
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStageMetrics(observability.Meter("screenlight"))
//	metrics.RecordStart(ctx, "zones", "transform")
//	metrics.RecordEnd(ctx, "zones", "transform", "completed", in, out, elapsed)
package observability
