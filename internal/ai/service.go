package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"engagemeter/internal/config"
	"engagemeter/internal/errors"
	"engagemeter/internal/types"
)

// Service produces coaching feedback through the configured provider
type Service struct {
	Provider AIProvider
	config   config.OperationAIConfig
	logger   *errors.Logger
}

// NewService creates the feedback service for cfg, which must have defaults applied
func NewService(ctx context.Context, cfg config.OperationAIConfig, modelCheckTimeout time.Duration, logger *errors.Logger) (*Service, error) {
	var provider AIProvider
	var err error

	logger.Debug("Initializing AI service",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"temperature", *cfg.Temperature,
		"timeout", *cfg.Timeout,
		"max_retries", *cfg.MaxRetries,
		"use_system_prompts", *cfg.UseSystemPrompts)

	switch cfg.Provider {
	case "gemini":
		provider, err = NewGeminiProvider(ctx, cfg, modelCheckTimeout, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed,
			"Failed to create AI provider", err)
	}

	return NewServiceWithProvider(provider, cfg, logger), nil
}

// NewServiceWithProvider wraps an existing provider
func NewServiceWithProvider(provider AIProvider, cfg config.OperationAIConfig, logger *errors.Logger) *Service {
	return &Service{
		Provider: provider,
		config:   cfg,
		logger:   logger,
	}
}

// Feedback validates input, asks the provider for feedback and normalizes the result
func (s *Service) Feedback(ctx context.Context, input types.FeedbackInput) (types.FeedbackOutput, *TokenUsage, error) {
	if strings.TrimSpace(input.Question) == "" {
		return types.FeedbackOutput{}, nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"question is required", nil)
	}
	if strings.TrimSpace(input.Answer) == "" {
		return types.FeedbackOutput{}, nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"answer is required", nil)
	}
	if input.Summary.Samples == 0 {
		return types.FeedbackOutput{}, nil, errors.NewValidationError(errors.ErrCodeEmptySession,
			"session has no recorded frames", nil).WithContext("session_id", input.Summary.SessionID)
	}

	s.logger.Debug("Requesting coaching feedback",
		"session_id", input.Summary.SessionID,
		"samples", input.Summary.Samples,
		"model", s.config.Model)

	start := time.Now()
	output, usage, err := s.Provider.GenerateFeedback(ctx, input)
	if err != nil {
		return types.FeedbackOutput{}, nil, err
	}

	s.logger.Info("Coaching feedback generated",
		"session_id", input.Summary.SessionID,
		"score", output.OverallScore,
		"duration_ms", time.Since(start).Milliseconds())

	return normalizeFeedback(output), usage, nil
}

// normalizeFeedback clamps the score and replaces nil lists with empty ones
func normalizeFeedback(out types.FeedbackOutput) types.FeedbackOutput {
	out.OverallScore = max(0, min(100, out.OverallScore))
	if out.Strengths == nil {
		out.Strengths = []string{}
	}
	if out.Improvements == nil {
		out.Improvements = []string{}
	}
	return out
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// GetStats returns provider statistics when the provider exposes them
func (s *Service) GetStats() map[string]any {
	if p, ok := s.Provider.(interface{ GetCircuitBreakerStats() map[string]any }); ok {
		return p.GetCircuitBreakerStats()
	}
	return map[string]any{}
}

// Close releases the provider
func (s *Service) Close() error {
	return s.Provider.Close()
}
