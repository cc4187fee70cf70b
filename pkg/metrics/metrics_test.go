package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiriru/mistral-relay/pkg/normalizer"
	"github.com/kiriru/mistral-relay/test/helpers"
	"github.com/kiriru/mistral-relay/test/helpers/ginmode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept the default path", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("Should reject malformed paths", func(t *testing.T) {
		for _, p := range []string{"", "metrics", "/api/metrics", "/metrics?x=1"} {
			cfg := &Config{Enabled: true, Path: p}
			assert.Error(t, cfg.Validate(), "path %q", p)
		}
	})
}

func TestHTTPMetrics(t *testing.T) {
	ginmode.EnsureGinTestMode()

	t.Run("Should label local routes by pattern and relayed requests as forwarded", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		router := gin.New()
		router.Use(HTTPMetrics(helpers.NewTestContext(t), meter))
		router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.NoRoute(func(c *gin.Context) { c.Status(http.StatusBadGateway) })

		for _, path := range []string{"/healthz", "/v1/chat/completions", "/v1/models"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		}

		metrics := collect(t, reader)
		require.Contains(t, metrics, "relay_http_requests_total")
		byRoute := sumByAttr(t, metrics["relay_http_requests_total"], "route")
		assert.Equal(t, map[string]int64{"/healthz": 1, ForwardedRoute: 2}, byRoute)
		byStatus := sumByAttr(t, metrics["relay_http_requests_total"], "status_code")
		assert.Equal(t, map[string]int64{"200": 1, "502": 2}, byStatus)
		assert.Contains(t, metrics, "relay_http_request_duration_seconds")
		assert.Contains(t, metrics, "relay_http_requests_in_flight")
	})
}

func TestRelay(t *testing.T) {
	t.Run("Should count outcomes and touched turns", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		svc := NewServiceWithReader(helpers.NewTestContext(t), reader)
		r := svc.Relay()
		ctx := t.Context()

		r.RecordNormalization(ctx, normalizer.Stats{Merged: 2, Bridged: 1})
		r.RecordNormalization(ctx, normalizer.Stats{})
		r.RecordRejected(ctx)
		r.RecordUpstream(ctx, 200, 150*time.Millisecond)
		r.RecordUpstream(ctx, 0, time.Second)

		metrics := collect(t, reader)
		assert.Equal(t,
			map[string]int64{OutcomeRewritten: 1, OutcomeUnchanged: 1, OutcomeRejected: 1},
			sumByAttr(t, metrics["relay_normalizations_total"], "outcome"))
		assert.Equal(t,
			map[string]int64{"merged": 2, "bridged": 1},
			sumByAttr(t, metrics["relay_normalized_turns_total"], "kind"))
		assert.Equal(t,
			map[string]int64{"200": 1, "error": 1},
			sumByAttr(t, metrics["relay_upstream_requests_total"], "status_code"))
		assert.Contains(t, metrics, "relay_build_info")
		assert.Contains(t, metrics, "relay_uptime_seconds")
	})

	t.Run("Should tolerate a nil receiver", func(t *testing.T) {
		var r *Relay
		assert.NotPanics(t, func() {
			r.RecordNormalization(t.Context(), normalizer.Stats{Merged: 1})
			r.RecordRejected(t.Context())
			r.RecordUpstream(t.Context(), 200, time.Millisecond)
		})
	})
}

func TestService(t *testing.T) {
	t.Run("Should answer 503 when disabled", func(t *testing.T) {
		svc, err := NewService(helpers.NewTestContext(t), DefaultConfig())
		require.NoError(t, err)
		assert.False(t, svc.IsInitialized())
		w := httptest.NewRecorder()
		svc.ExporterHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotNil(t, svc.Relay())
	})

	t.Run("Should expose Prometheus text when enabled", func(t *testing.T) {
		svc, err := NewService(helpers.NewTestContext(t), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
		svc.Relay().RecordRejected(t.Context())

		srv := httptest.NewServer(svc.ExporterHandler())
		defer srv.Close()
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "relay_build_info")
		assert.Contains(t, string(body), "relay_normalizations_total")
	})

	t.Run("Should fall back to no-op on invalid config", func(t *testing.T) {
		svc := NewServiceWithFallback(helpers.NewTestContext(t), &Config{Enabled: true, Path: "metrics"})
		assert.False(t, svc.IsInitialized())
		assert.Error(t, svc.InitializationError())
	})
}
