package cli

import (
	"fmt"

	"engagemeter/internal/ai"
	"engagemeter/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP and WebSocket server for live engagement estimation",
	Long: `Start an HTTP server that scores frames and tracks mock interview sessions.

Available endpoints:
- POST /estimate: Score a single frame without a session
- POST /sessions: Start a session
- GET /sessions/{id}: Session summary
- DELETE /sessions/{id}: End a session
- POST /sessions/{id}/frames: Score a frame and record it on the session
- GET /sessions/{id}/history: Recent samples of the session
- POST /sessions/{id}/feedback: AI coaching feedback for an answer
- GET /sessions/{id}/stream: WebSocket stream of frames in, metrics out
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server
- Use --cert-file and --key-file for TLS certificates`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringP("port", "p", "", "Port to listen on (default from config)")
	flags.String("host", "", "Host to bind to (default from config)")
	flags.String("tls-mode", "", "TLS mode: disabled, server (overrides config)")
	flags.String("cert-file", "", "Server certificate file (PEM, overrides config)")
	flags.String("key-file", "", "Server private key file (PEM, overrides config)")

	bindConfigFlag(flags, "port", "server.port")
	bindConfigFlag(flags, "host", "server.host")
	bindConfigFlag(flags, "tls-mode", "server.tls.mode")
	bindConfigFlag(flags, "cert-file", "server.tls.certFile")
	bindConfigFlag(flags, "key-file", "server.tls.keyFile")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	srv := server.NewServer(cfg, server.ServerConfigFrom(cfg, Version), logger)

	// Feedback stays disabled without an AI key; the rest of the API still works
	if err := cfg.ValidateAI(); err != nil {
		logger.Warn("AI feedback disabled", "reason", err.Error())
	} else {
		aiService, err := ai.NewService(cmd.Context(), cfg.GetFeedbackConfig(), cfg.Observability.HealthCheck.AIModelCheckTimeout, logger)
		if err != nil {
			srv.Close()
			return fmt.Errorf("failed to create AI service: %w", err)
		}
		defer func() {
			if err := aiService.Close(); err != nil {
				logger.Warn("Failed to close AI service", "error", err)
			}
		}()
		srv.Feedback = aiService
	}

	return srv.Start(cmd.Context())
}
