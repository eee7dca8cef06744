package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "github.com/wolfeidau/accounts"
	tracerName = "github.com/wolfeidau/accounts"
)

// Attribute keys shared by sync instruments and spans.
var (
	AttrTarget     = attribute.Key("sync.target")
	AttrEntityType = attribute.Key("sync.entity_type")
	AttrAction     = attribute.Key("sync.action")
	AttrOutcome    = attribute.Key("sync.outcome")
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Outbox metrics
	TasksEnqueuedTotal metric.Int64Counter

	// Worker metrics
	TasksClaimedTotal      metric.Int64Counter
	TasksDeliveredTotal    metric.Int64Counter
	TasksSkippedTotal      metric.Int64Counter
	TasksRetriedTotal      metric.Int64Counter
	TasksDeadLetteredTotal metric.Int64Counter
	DeliveryDuration       metric.Float64Histogram

	// Request metrics
	AuthFailuresTotal     metric.Int64Counter
	PermissionDeniedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TasksEnqueuedTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.enqueued.total",
		metric.WithDescription("Total number of sync tasks committed to the outbox"),
		metric.WithUnit("{task}"),
	)

	m.TasksClaimedTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.claimed.total",
		metric.WithDescription("Total number of sync tasks claimed by lane consumers"),
		metric.WithUnit("{task}"),
	)

	m.TasksDeliveredTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.delivered.total",
		metric.WithDescription("Total number of sync tasks delivered to target services"),
		metric.WithUnit("{task}"),
	)

	m.TasksSkippedTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.skipped.total",
		metric.WithDescription("Total number of sync tasks completed without a remote call"),
		metric.WithUnit("{task}"),
	)

	m.TasksRetriedTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.retried.total",
		metric.WithDescription("Total number of sync tasks rescheduled after a transient failure"),
		metric.WithUnit("{task}"),
	)

	m.TasksDeadLetteredTotal, _ = meter.Int64Counter(
		"accounts.sync.tasks.dead_lettered.total",
		metric.WithDescription("Total number of sync tasks moved to the dead letter table"),
		metric.WithUnit("{task}"),
	)

	m.DeliveryDuration, _ = meter.Float64Histogram(
		"accounts.sync.delivery.duration",
		metric.WithDescription("Duration of sync task processing including remote calls"),
		metric.WithUnit("ms"),
	)

	m.AuthFailuresTotal, _ = meter.Int64Counter(
		"accounts.auth.failures.total",
		metric.WithDescription("Total number of rejected access tokens"),
		metric.WithUnit("{request}"),
	)

	m.PermissionDeniedTotal, _ = meter.Int64Counter(
		"accounts.permission.denied.total",
		metric.WithDescription("Total number of requests denied by the permission engine"),
		metric.WithUnit("{request}"),
	)

	return m
}

// Tracer returns the tracer used for sync spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
