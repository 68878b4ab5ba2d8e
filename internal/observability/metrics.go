// Package observability provides OpenTelemetry instrumentation for metrics
// and tracing.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"tenantplane/internal/store"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the HTTP handler for the /metrics endpoint
// and a shutdown function to call on exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RegisterJobGauges exports per-status job counts from the job store as an
// observable gauge.
func RegisterJobGauges(jobs *store.JobStore) error {
	meter := otel.Meter("tenantplane/jobs")
	gauge, err := meter.Int64ObservableGauge("tenantplane_jobs",
		metric.WithDescription("Number of jobs currently held in the job store, by status"),
	)
	if err != nil {
		return fmt.Errorf("failed to create jobs gauge: %w", err)
	}

	statuses := []store.JobStatus{
		store.JobStatusQueued,
		store.JobStatusRunning,
		store.JobStatusSucceeded,
		store.JobStatusFailed,
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, st := range statuses {
			o.ObserveInt64(gauge, jobs.Count(st),
				metric.WithAttributes(attribute.String("status", string(st))))
		}
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register jobs gauge callback: %w", err)
	}
	return nil
}

var (
	countersOnce sync.Once
	countersErr  error
	commandRuns  metric.Int64Counter
	quotaDenials metric.Int64Counter
)

func counters() error {
	countersOnce.Do(func() {
		meter := otel.Meter("tenantplane/counters")
		commandRuns, countersErr = meter.Int64Counter("tenantplane_cli_runs_total",
			metric.WithDescription("External CLI invocations executed by workflow steps"))
		if countersErr != nil {
			return
		}
		quotaDenials, countersErr = meter.Int64Counter("tenantplane_quota_denials_total",
			metric.WithDescription("Quota admission checks that denied a request"))
	})
	return countersErr
}

// RecordCommandRun counts one external CLI invocation made by a workflow step.
func RecordCommandRun(ctx context.Context, step string, exitCode int) {
	if counters() != nil {
		return
	}
	commandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.Int("exit_code", exitCode),
	))
}

// RecordQuotaDenial counts one denied quota admission check.
func RecordQuotaDenial(ctx context.Context, namespace, reason string) {
	if counters() != nil {
		return
	}
	quotaDenials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("reason", reason),
	))
}
