package server

import (
	"context"
	"time"

	"engagemeter/internal/ai"
	"engagemeter/internal/config"
	appErrors "engagemeter/internal/errors"
	"engagemeter/internal/session"
	"engagemeter/internal/types"

	"github.com/gorilla/websocket"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateSessionResponse is returned by POST /sessions
type CreateSessionResponse struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// FrameResponse is returned for every recorded frame
type FrameResponse struct {
	Metrics types.EngagementMetrics `json:"metrics"`
	Summary types.SessionSummary    `json:"summary"`
}

// HistoryResponse is returned by GET /sessions/{id}/history
type HistoryResponse struct {
	SessionID string         `json:"sessionId"`
	Samples   []types.Sample `json:"samples"`
}

// FeedbackRequest represents the request body for the feedback endpoint
type FeedbackRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FeedbackResponse is returned by POST /sessions/{id}/feedback
type FeedbackResponse = types.FeedbackReport

// FeedbackService produces coaching feedback; *ai.Service implements it
type FeedbackService interface {
	Feedback(ctx context.Context, input types.FeedbackInput) (types.FeedbackOutput, *ai.TokenUsage, error)
	GetModelInfo(ctx context.Context) *ai.ModelInfo
}

// Server holds configuration and collaborators for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	TLSConfig    config.TLSConfig
	CertReloader *CertReloader

	// API Authentication
	APIKeys map[string]bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxRequestSize int64

	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	Sessions    *session.Store
	TopEmotions int

	// Feedback is nil when no AI key is configured
	Feedback FeedbackService

	// Browser origins allowed on the session stream besides the server's own
	AllowedOrigins []string

	upgrader        websocket.Upgrader
	streamReadLimit int64

	Logger *appErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host               string
	Port               string
	Version            string
	TLSConfig          config.TLSConfig
	APIKeys            []string
	AllowedOrigins     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxRequestSize     int64
	RateLimit          *config.RateLimitConfig
	HistorySize        int
	TopEmotions        int
	SessionIdleTimeout time.Duration
	StreamReadLimit    int64
}

// ServerConfigFrom extracts server settings from the application config
func ServerConfigFrom(cfg *config.Config, version string) ServerConfig {
	rateLimit := cfg.Server.RateLimit
	return ServerConfig{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Version:            version,
		TLSConfig:          cfg.Server.TLS,
		APIKeys:            cfg.Server.APIKeys,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        cfg.Server.IdleTimeout,
		MaxRequestSize:     cfg.Server.MaxRequestSize,
		RateLimit:          &rateLimit,
		HistorySize:        cfg.Engagement.HistorySize,
		TopEmotions:        cfg.Engagement.TopEmotions,
		SessionIdleTimeout: cfg.Engagement.SessionIdleTimeout,
		StreamReadLimit:    cfg.Engagement.StreamReadLimit,
	}
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, logger *appErrors.Logger) *Server {
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstCapacity, logger)
	}

	streamReadLimit := cfg.StreamReadLimit
	if streamReadLimit <= 0 {
		streamReadLimit = defaultStreamReadLimit
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		TLSConfig:      cfg.TLSConfig,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Sessions:       session.NewStore(cfg.HistorySize, cfg.SessionIdleTimeout, logger),
		TopEmotions:    cfg.TopEmotions,
		AllowedOrigins: cfg.AllowedOrigins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		streamReadLimit: streamReadLimit,
		Logger:          logger,
	}
}

// Close releases background resources owned by the server
func (s *Server) Close() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
	}
	s.Sessions.Close()
}
