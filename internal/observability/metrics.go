// Package observability holds the process-wide metrics and tracer of the
// analyzer. Metrics register with the default Prometheus registry; spans go
// to whatever OpenTelemetry provider the host installed.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the analyzer's tracer.
var Tracer = otel.Tracer("github.com/jward/topdown")

// Metrics definitions
var (
	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topdown_pass_seconds",
		Help:    "Time spent in one analysis pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	DeclarationsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topdown_declarations_collected_total",
		Help: "Total number of declarations collected from source files.",
	})

	DiagnosticsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topdown_diagnostics_total",
		Help: "Total number of diagnostics reported, by code.",
	}, []string{"code"})

	Computations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topdown_lazy_computations_total",
		Help: "Total number of lazy values and memo entries computed.",
	})

	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topdown_analyses_total",
		Help: "Total number of analysis runs, by outcome.",
	}, []string{"outcome"})

	FilesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topdown_files_parsed_total",
		Help: "Total number of source files parsed by the frontend.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topdown_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)

// StartPass opens a span for one analysis pass. The returned function ends
// the span and observes the pass duration; pass a non-nil error to mark the
// span failed.
func StartPass(ctx context.Context, pass string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := Tracer.Start(ctx, "topdown."+pass, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	}
}
