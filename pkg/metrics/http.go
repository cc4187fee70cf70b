package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ForwardedRoute labels requests that matched no local route and were
// relayed upstream.
const ForwardedRoute = "forwarded"

type httpInstruments struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	requestsInFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(ctx context.Context, meter metric.Meter) *httpInstruments {
	log := logger.FromContext(ctx)
	var (
		in  httpInstruments
		err error
	)
	in.requestsTotal, err = meter.Int64Counter(
		"relay_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		log.Error("Failed to create http requests total counter", "error", err)
		return nil
	}
	in.requestDuration, err = meter.Float64Histogram(
		"relay_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		log.Error("Failed to create http request duration histogram", "error", err)
		return nil
	}
	in.requestsInFlight, err = meter.Int64UpDownCounter(
		"relay_http_requests_in_flight",
		metric.WithDescription("Currently active HTTP requests"),
	)
	if err != nil {
		log.Error("Failed to create http requests in flight counter", "error", err)
		return nil
	}
	return &in
}

// HTTPMetrics returns a Gin middleware that collects HTTP metrics
func HTTPMetrics(ctx context.Context, meter metric.Meter) gin.HandlerFunc {
	in := newHTTPInstruments(ctx, meter)
	return func(c *gin.Context) {
		if in == nil {
			c.Next()
			return
		}
		reqCtx := c.Request.Context()
		start := time.Now()
		in.requestsInFlight.Add(reqCtx, 1)
		defer in.requestsInFlight.Add(reqCtx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = ForwardedRoute
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		in.requestsTotal.Add(reqCtx, 1, attrs)
		in.requestDuration.Record(reqCtx, time.Since(start).Seconds(), attrs)
	}
}
