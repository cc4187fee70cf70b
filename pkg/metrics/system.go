package metrics

import (
	"context"
	"time"

	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InitSystemMetrics records build information and registers an uptime gauge
// on meter.
func InitSystemMetrics(ctx context.Context, meter metric.Meter) {
	log := logger.FromContext(ctx)
	buildInfo, err := meter.Float64Gauge(
		"relay_build_info",
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		log.Error("Failed to create build info gauge", "error", err)
	} else {
		info := version.Get()
		buildInfo.Record(ctx, 1, metric.WithAttributes(
			attribute.String("version", info.Version),
			attribute.String("commit_hash", info.CommitHash),
			attribute.String("go_version", info.GoVersion),
		))
	}
	startTime := time.Now()
	_, err = meter.Float64ObservableGauge(
		"relay_uptime_seconds",
		metric.WithDescription("Service uptime in seconds"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(time.Since(startTime).Seconds())
			return nil
		}),
	)
	if err != nil {
		log.Error("Failed to create uptime gauge", "error", err)
	}
}
