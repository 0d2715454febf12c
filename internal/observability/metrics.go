package observability

import (
	"context"
	"fmt"
	"time"

	"engagemeter/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Metric types accepted by RecordBusinessMetric
const (
	MetricSessionCreated = "session_created"
	MetricFeedback       = "feedback_generated"
	MetricRateLimitHit   = "rate_limit_hit"
	MetricCertReload     = "cert_reload"
)

// Metrics holds all custom instruments
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Engagement metrics
	FramesEstimated   metric.Int64Counter
	NoFaceFallbacks   metric.Int64Counter
	EngagementScore   metric.Float64Histogram
	SessionsCreated   metric.Int64Counter
	SessionsEvicted   metric.Int64Counter
	FeedbackGenerated metric.Int64Counter
	StreamClients     metric.Int64UpDownCounter

	// Certificate metrics
	CertReloadCount metric.Int64Counter
	CertExpiryTime  metric.Float64Gauge

	// Rate limiting metrics
	RateLimitHits metric.Int64Counter
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage mirrors the provider token counts
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AIProcessingTime, err = meter.Float64Histogram(
		"engagemeter_ai_processing_duration_seconds",
		metric.WithDescription("Time spent processing AI requests"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	if m.AIRequestCount, err = meter.Int64Counter(
		"engagemeter_ai_requests_total",
		metric.WithDescription("Total number of AI requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	if m.AIErrorCount, err = meter.Int64Counter(
		"engagemeter_ai_errors_total",
		metric.WithDescription("Total number of AI request errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	if m.AITokenUsage, err = meter.Int64Histogram(
		"engagemeter_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output, total)"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	if m.FramesEstimated, err = meter.Int64Counter(
		"engagemeter_frames_estimated_total",
		metric.WithDescription("Total number of frames turned into engagement metrics"),
	); err != nil {
		return nil, fmt.Errorf("failed to create frames estimated metric: %w", err)
	}

	if m.NoFaceFallbacks, err = meter.Int64Counter(
		"engagemeter_no_face_fallbacks_total",
		metric.WithDescription("Frames answered with the no-face defaults"),
	); err != nil {
		return nil, fmt.Errorf("failed to create no-face fallback metric: %w", err)
	}

	if m.EngagementScore, err = meter.Float64Histogram(
		"engagemeter_engagement_score",
		metric.WithDescription("Distribution of estimated scores by kind"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	); err != nil {
		return nil, fmt.Errorf("failed to create engagement score metric: %w", err)
	}

	if m.SessionsCreated, err = meter.Int64Counter(
		"engagemeter_sessions_created_total",
		metric.WithDescription("Total number of sessions created"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions created metric: %w", err)
	}

	if m.SessionsEvicted, err = meter.Int64Counter(
		"engagemeter_sessions_evicted_total",
		metric.WithDescription("Total number of idle sessions evicted"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions evicted metric: %w", err)
	}

	if m.FeedbackGenerated, err = meter.Int64Counter(
		"engagemeter_feedback_generated_total",
		metric.WithDescription("Total number of coaching feedback requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create feedback metric: %w", err)
	}

	if m.StreamClients, err = meter.Int64UpDownCounter(
		"engagemeter_stream_clients",
		metric.WithDescription("Open WebSocket stream connections"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stream clients metric: %w", err)
	}

	if m.CertReloadCount, err = meter.Int64Counter(
		"engagemeter_cert_reloads_total",
		metric.WithDescription("Total number of certificate reloads"),
	); err != nil {
		return nil, fmt.Errorf("failed to create certificate reload count metric: %w", err)
	}

	if m.CertExpiryTime, err = meter.Float64Gauge(
		"engagemeter_cert_expiry_seconds",
		metric.WithDescription("Seconds until certificate expiry"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create certificate expiry time metric: %w", err)
	}

	if m.RateLimitHits, err = meter.Int64Counter(
		"engagemeter_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return m, nil
}

// TrackAIOperationWithTokens instruments an AI operation with tracing, metrics and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIProcessingTime == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := om.Tracer("engagemeter.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	if om.aiMetricsEnabled() {
		m.recordAIMetrics(ctx, operation, err, duration, result, om, span)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
	return err
}

func (m *Metrics) recordAIMetrics(ctx context.Context, operation string, err error, duration float64, result *AIOperationResult, om *ObservabilityManager, span oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	if om.trackAIDuration() {
		m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
	m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if result != nil && result.TokenUsage != nil {
		if om.trackTokenUsage() {
			m.recordTokenMetrics(ctx, result.TokenUsage, operation)
		}
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
		)
	}

	span.SetAttributes(attrs...)
}

func (m *Metrics) recordTokenMetrics(ctx context.Context, usage *TokenUsage, operation string) {
	tokenTypes := []struct {
		tokenType string
		value     int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	}

	for _, tt := range tokenTypes {
		m.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("token_type", tt.tokenType),
		))
	}
}

// RecordFrame records one estimator result; source is "http", "stream" or "cli"
func (m *Metrics) RecordFrame(ctx context.Context, metrics types.EngagementMetrics, source string, om *ObservabilityManager) {
	if m.FramesEstimated == nil || !om.trackFrames() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("face_detected", metrics.FaceDetected),
		attribute.String("source", source),
	)
	m.FramesEstimated.Add(ctx, 1, attrs)

	if !metrics.FaceDetected {
		m.NoFaceFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
		return
	}

	for kind, value := range map[string]int{
		"attention":  metrics.Attention,
		"positivity": metrics.Positivity,
		"confidence": metrics.Confidence,
		"arousal":    metrics.Arousal,
	} {
		m.EngagementScore.Record(ctx, float64(value), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordSessionsEvicted adds n idle-session evictions
func (m *Metrics) RecordSessionsEvicted(ctx context.Context, n int, om *ObservabilityManager) {
	if m.SessionsEvicted == nil || !om.trackSessions() {
		return
	}
	m.SessionsEvicted.Add(ctx, int64(n))
}

// RecordStreamClient adjusts the open stream gauge by delta
func (m *Metrics) RecordStreamClient(ctx context.Context, delta int64) {
	if m.StreamClients != nil {
		m.StreamClients.Add(ctx, delta)
	}
}

// RecordCertExpiry records seconds until the served certificate expires
func (m *Metrics) RecordCertExpiry(ctx context.Context, notAfter time.Time, om *ObservabilityManager) {
	if m.CertExpiryTime == nil || !om.trackCertReloads() {
		return
	}
	m.CertExpiryTime.Record(ctx, time.Until(notAfter).Seconds())
}

// RecordBusinessMetric records counters keyed by metric type
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricType string, success bool, om *ObservabilityManager, attributes ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)
	opt := metric.WithAttributes(attrs...)

	switch metricType {
	case MetricSessionCreated:
		if m.SessionsCreated != nil && om.trackSessions() {
			m.SessionsCreated.Add(ctx, 1, opt)
		}
	case MetricFeedback:
		if m.FeedbackGenerated != nil && om.config.CustomMetrics.BusinessMetrics.Enabled {
			m.FeedbackGenerated.Add(ctx, 1, opt)
		}
	case MetricRateLimitHit:
		if m.RateLimitHits != nil && om.trackRateLimits() {
			m.RateLimitHits.Add(ctx, 1, opt)
		}
	case MetricCertReload:
		if m.CertReloadCount != nil && om.trackCertReloads() {
			m.CertReloadCount.Add(ctx, 1, opt)
		}
	}
}
