package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"engagemeter/internal/config"
	"engagemeter/internal/types"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{
		Enabled:     true,
		ServiceName: "engagemeter-test",
		SampleRate:  1.0,
		CustomMetrics: config.CustomMetricsConfig{
			AIOperations:    config.AIOperationsMetricsConfig{Enabled: true, TrackDuration: true, TrackTokenUsage: true},
			BusinessMetrics: config.BusinessMetricsConfig{Enabled: true, TrackFrames: true, TrackSessions: true},
			Infrastructure:  config.InfrastructureMetricsConfig{Enabled: true, TrackRateLimits: true, TrackCertReloads: true},
		},
	}
}

func newTestManager(t *testing.T, cfg config.ObservabilityConfig) (*ObservabilityManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	om, err := NewObservabilityManager(cfg, "test", reader)
	if err != nil {
		t.Fatalf("Failed to create observability manager: %v", err)
	}
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })
	return om, reader
}

// sumCounter adds up all data points of an int64 sum, optionally filtered by one attribute
func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string, filter ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("Metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if len(filter) > 0 {
					if v, ok := dp.Attributes.Value(filter[0].Key); !ok || v != filter[0].Value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecordFrame(t *testing.T) {
	om, reader := newTestManager(t, testConfig())
	ctx := context.Background()
	m := om.GetMetrics()

	m.RecordFrame(ctx, types.EngagementMetrics{FaceDetected: true, Attention: 80}, "http", om)
	m.RecordFrame(ctx, types.EngagementMetrics{FaceDetected: true, Attention: 40}, "stream", om)
	m.RecordFrame(ctx, types.EngagementMetrics{FaceDetected: false}, "http", om)

	if got := sumCounter(t, reader, "engagemeter_frames_estimated_total"); got != 3 {
		t.Errorf("Expected 3 frames, got %d", got)
	}
	if got := sumCounter(t, reader, "engagemeter_frames_estimated_total", attribute.Bool("face_detected", true)); got != 2 {
		t.Errorf("Expected 2 frames with a face, got %d", got)
	}
	if got := sumCounter(t, reader, "engagemeter_no_face_fallbacks_total"); got != 1 {
		t.Errorf("Expected 1 no-face fallback, got %d", got)
	}
}

func TestRecordFrameDisabledByConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CustomMetrics.BusinessMetrics.TrackFrames = false
	om, reader := newTestManager(t, cfg)

	om.GetMetrics().RecordFrame(context.Background(), types.EngagementMetrics{FaceDetected: true}, "http", om)
	if got := sumCounter(t, reader, "engagemeter_frames_estimated_total"); got != 0 {
		t.Errorf("Expected no frames recorded, got %d", got)
	}
}

func TestRecordBusinessMetric(t *testing.T) {
	om, reader := newTestManager(t, testConfig())
	ctx := context.Background()
	m := om.GetMetrics()

	m.RecordBusinessMetric(ctx, MetricSessionCreated, true, om)
	m.RecordBusinessMetric(ctx, MetricSessionCreated, true, om)
	m.RecordBusinessMetric(ctx, MetricRateLimitHit, false, om, attribute.String("limit_type", "ip"))
	m.RecordBusinessMetric(ctx, "unknown", true, om)
	m.RecordSessionsEvicted(ctx, 3, om)

	tests := []struct {
		name string
		want int64
	}{
		{"engagemeter_sessions_created_total", 2},
		{"engagemeter_rate_limit_hits_total", 1},
		{"engagemeter_sessions_evicted_total", 3},
	}
	for _, tt := range tests {
		if got := sumCounter(t, reader, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTrackAIOperationWithTokens(t *testing.T) {
	om, reader := newTestManager(t, testConfig())
	ctx := context.Background()
	m := om.GetMetrics()

	err := m.TrackAIOperationWithTokens(ctx, "feedback", func(context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}
	}, om)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	failure := errors.New("upstream")
	err = m.TrackAIOperationWithTokens(ctx, "feedback", func(context.Context) *AIOperationResult {
		return &AIOperationResult{Error: failure}
	}, om)
	if !errors.Is(err, failure) {
		t.Errorf("Expected the operation error to be returned, got %v", err)
	}

	if got := sumCounter(t, reader, "engagemeter_ai_requests_total"); got != 2 {
		t.Errorf("Expected 2 AI requests, got %d", got)
	}
	if got := sumCounter(t, reader, "engagemeter_ai_errors_total"); got != 1 {
		t.Errorf("Expected 1 AI error, got %d", got)
	}
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(config.ObservabilityConfig{}, "test")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m := om.GetMetrics()

	// Instruments are nil; all recorders must be no-ops.
	m.RecordFrame(context.Background(), types.EngagementMetrics{}, "cli", om)
	m.RecordBusinessMetric(context.Background(), MetricSessionCreated, true, om)
	m.RecordStreamClient(context.Background(), 1)

	called := false
	_ = m.TrackAIOperationWithTokens(context.Background(), "feedback", func(context.Context) *AIOperationResult {
		called = true
		return nil
	}, om)
	if !called {
		t.Error("Expected the operation to run without metrics")
	}

	h := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected pass-through middleware, got %d", rec.Code)
	}
	if om.PrometheusHandler() != nil {
		t.Error("Expected no Prometheus handler when disabled")
	}
}

func TestPrometheusHandler(t *testing.T) {
	cfg := testConfig()
	cfg.Prometheus = config.PrometheusConfig{Enabled: true, Endpoint: "/metrics", Port: "0"}
	om, _ := newTestManager(t, cfg)

	om.GetMetrics().RecordFrame(context.Background(), types.EngagementMetrics{FaceDetected: true}, "http", om)

	handler := om.PrometheusHandler()
	if handler == nil {
		t.Fatal("Expected a Prometheus handler")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "engagemeter_frames_estimated") {
		t.Errorf("Expected frames metric in scrape output, got:\n%s", body)
	}
}
