package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/normalizer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes of a gated request.
const (
	OutcomeRewritten = "rewritten"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "rejected"
)

// Relay holds the instruments describing normalization and upstream calls.
// A nil *Relay is valid and records nothing.
type Relay struct {
	normalizations   metric.Int64Counter
	turns            metric.Int64Counter
	upstreamRequests metric.Int64Counter
	upstreamDuration metric.Float64Histogram
}

// NewRelay creates the relay instruments on meter. Instruments that fail to
// register are logged and left nil.
func NewRelay(ctx context.Context, meter metric.Meter) *Relay {
	log := logger.FromContext(ctx)
	r := &Relay{}
	var err error
	r.normalizations, err = meter.Int64Counter(
		"relay_normalizations_total",
		metric.WithDescription("Gated requests by normalization outcome"),
	)
	if err != nil {
		log.Error("Failed to create normalizations counter", "error", err)
	}
	r.turns, err = meter.Int64Counter(
		"relay_normalized_turns_total",
		metric.WithDescription("Turns merged, demoted or bridged by the normalizer"),
	)
	if err != nil {
		log.Error("Failed to create normalized turns counter", "error", err)
	}
	r.upstreamRequests, err = meter.Int64Counter(
		"relay_upstream_requests_total",
		metric.WithDescription("Requests sent to the upstream API"),
	)
	if err != nil {
		log.Error("Failed to create upstream requests counter", "error", err)
	}
	r.upstreamDuration, err = meter.Float64Histogram(
		"relay_upstream_response_seconds",
		metric.WithDescription("Time until upstream response headers"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		log.Error("Failed to create upstream duration histogram", "error", err)
	}
	return r
}

// RecordNormalization counts one gated request and the turns it touched.
func (r *Relay) RecordNormalization(ctx context.Context, stats normalizer.Stats) {
	if r == nil {
		return
	}
	outcome := OutcomeUnchanged
	if stats.Changed() {
		outcome = OutcomeRewritten
	}
	if r.normalizations != nil {
		r.normalizations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if r.turns == nil {
		return
	}
	for kind, n := range map[string]int{
		"merged":  stats.Merged,
		"demoted": stats.Demoted,
		"bridged": stats.Bridged,
	} {
		if n > 0 {
			r.turns.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
		}
	}
}

// RecordRejected counts a gated request whose body could not be normalized.
func (r *Relay) RecordRejected(ctx context.Context) {
	if r == nil || r.normalizations == nil {
		return
	}
	r.normalizations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", OutcomeRejected)))
}

// RecordUpstream records one upstream round trip. status is zero when the
// request failed before a response arrived.
func (r *Relay) RecordUpstream(ctx context.Context, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	attrs := metric.WithAttributes(attribute.String("status_code", code))
	if r.upstreamRequests != nil {
		r.upstreamRequests.Add(ctx, 1, attrs)
	}
	if r.upstreamDuration != nil {
		r.upstreamDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
