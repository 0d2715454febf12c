package ai

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"engagemeter/internal/config"
	appErrors "engagemeter/internal/errors"
	"engagemeter/internal/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const (
	maxBackoff        = 30 * time.Second
	defaultModelCheck = 10 * time.Second
)

// GeminiProvider implements AIProvider for Google Gemini
type GeminiProvider struct {
	client            *genai.Client
	config            config.OperationAIConfig
	breaker           *CircuitBreaker[*genai.GenerateContentResponse]
	modelBreaker      *CircuitBreaker[*genai.Model]
	modelCheckTimeout time.Duration
	logger            *appErrors.Logger

	// wait blocks between retry attempts; replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

var _ AIProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider for the feedback operation.
// cfg must have its defaults applied (see config.GetFeedbackConfig).
func NewGeminiProvider(ctx context.Context, cfg config.OperationAIConfig, modelCheckTimeout time.Duration, logger *appErrors.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   *cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	p := newGeminiProvider(cfg, modelCheckTimeout, logger)
	p.client = client
	return p, nil
}

// newGeminiProvider wires everything but the client
func newGeminiProvider(cfg config.OperationAIConfig, modelCheckTimeout time.Duration, logger *appErrors.Logger) *GeminiProvider {
	if modelCheckTimeout <= 0 {
		modelCheckTimeout = defaultModelCheck
	}
	return &GeminiProvider{
		config:            cfg,
		breaker:           NewCircuitBreaker[*genai.GenerateContentResponse]("Feedback", cfg.CircuitBreaker, logger),
		modelBreaker:      NewCircuitBreaker[*genai.Model]("Feedback-Model", cfg.CircuitBreaker, logger),
		modelCheckTimeout: modelCheckTimeout,
		logger:            logger,
		wait:              sleepContext,
	}
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{Name: g.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, g.modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", g.config.Provider,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// GenerateFeedback implements AIProvider
func (g *GeminiProvider) GenerateFeedback(ctx context.Context, input types.FeedbackInput) (types.FeedbackOutput, *TokenUsage, error) {
	systemPrompt, userPrompt := buildFeedbackPrompts(
		promptSource{System: g.config.Prompts.System, User: g.config.Prompts.User}, input)

	output, tokenUsage, err := executeAIOperation[types.FeedbackOutput](
		g,
		ctx,
		"generate_feedback",
		userPrompt,
		systemPrompt,
		g.buildFeedbackSchema(),
		attribute.Int("input.answer_length", len(input.Answer)),
		attribute.Int("input.samples", input.Summary.Samples),
	)
	if err != nil {
		return types.FeedbackOutput{}, nil, err
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.Int("feedback.score", output.OverallScore),
			attribute.Int("feedback.improvements", len(output.Improvements)),
		)
	}

	return output, tokenUsage, nil
}

// executeAIOperation runs one generate call with tracing, the circuit breaker, retries and JSON decoding
func executeAIOperation[Out any](
	g *GeminiProvider,
	ctx context.Context,
	operationName string,
	userPrompt string,
	systemPrompt string,
	genaiConfig *genai.GenerateContentConfig,
	spanAttributes ...attribute.KeyValue,
) (Out, *TokenUsage, error) {
	var output Out
	ctx, span := otel.Tracer("engagemeter.ai.gemini").Start(ctx, "gemini."+operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(*g.config.Temperature)),
	)
	span.SetAttributes(spanAttributes...)

	if *g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := g.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, operationName, func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		if IsOpen(err) {
			return output, nil, appErrors.NewAIError(appErrors.ErrCodeAIUnavailable,
				"AI service temporarily unavailable", err)
		}
		return output, nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to generate content for "+operationName, err)
	}

	if err := json.Unmarshal([]byte(result.Text()), &output); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return output, nil, appErrors.NewAIError(appErrors.ErrCodeAIResponseParse,
			"Failed to parse AI response for "+operationName, err)
	}

	tokenUsage := extractTokenUsage(result)
	if tokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", tokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", tokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", tokenUsage.TotalTokens),
		)
	}

	span.SetAttributes(attribute.Bool("success", true))
	return output, tokenUsage, nil
}

// executeWithRetry retries fn on retryable errors with exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	maxRetries := *g.config.MaxRetries
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			if err := g.wait(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"max_retries", maxRetries)

	return nil, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

// backoffDelay returns 2^(attempt-1) seconds plus up to 10% jitter, capped at maxBackoff
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxBackoff
	}
	baseDelay := time.Duration(1<<(attempt-1)) * time.Second

	jitter := time.Duration(0)
	if n, err := rand.Int(rand.Reader, big.NewInt(int64(baseDelay/10))); err == nil {
		jitter = time.Duration(n.Int64())
	}
	return min(baseDelay+jitter, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRetryableError reports whether err is a network error or a transient Google API status
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// buildFeedbackSchema constrains the response to FeedbackOutput
func (g *GeminiProvider) buildFeedbackSchema() *genai.GenerateContentConfig {
	stringList := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"overallScore": {Type: genai.TypeInteger},
				"summary":      {Type: genai.TypeString},
				"strengths":    stringList,
				"improvements": stringList,
				"bodyLanguage": {Type: genai.TypeString},
			},
			Required: []string{"overallScore", "summary", "strengths", "improvements", "bodyLanguage"},
		},
	}

	if *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}
	return cfg
}

// GetCircuitBreakerStats returns statistics for both breakers
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.breaker.GetStats(),
		"model_operations": g.modelBreaker.GetStats(),
		"overall_healthy":  g.breaker.IsHealthy() && g.modelBreaker.IsHealthy(),
	}
}

// Close implements AIProvider. The genai client holds no resources for unary calls.
func (g *GeminiProvider) Close() error {
	return nil
}

// extractTokenUsage extracts token usage information from a Gemini response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
