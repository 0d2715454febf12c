package ai

import (
	"context"

	"engagemeter/internal/types"
)

// AIProvider generates coaching feedback for a mock interview answer.
// Token usage may be nil when the provider does not report it.
type AIProvider interface {
	GenerateFeedback(ctx context.Context, input types.FeedbackInput) (types.FeedbackOutput, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}
