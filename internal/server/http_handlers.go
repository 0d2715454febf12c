package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	appErrors "engagemeter/internal/errors"
)

const defaultHealthCheckTimeout = 5 * time.Second

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return defaultHealthCheckTimeout
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports service health including feedback model and certificate status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "engagemeter",
		"version": s.Version,
	}

	overallHealthy := true

	aiStatus := s.checkFeedbackHealth(r.Context())
	response["feedback_model"] = aiStatus
	if available, ok := aiStatus["available"].(bool); ok && !available && aiStatus["status"] != "not_configured" {
		overallHealthy = false
	}

	if certStatus := s.checkCertificateHealth(); certStatus != nil {
		response["certificates"] = certStatus
		if healthy, ok := certStatus["healthy"].(bool); ok && !healthy {
			overallHealthy = false
		}
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// checkFeedbackHealth asks the feedback model whether it is reachable.
// A server without an AI key reports not_configured and stays healthy.
func (s *Server) checkFeedbackHealth(ctx context.Context) map[string]any {
	if s.Feedback == nil {
		return map[string]any{
			"available": false,
			"status":    "not_configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.getHealthCheckTimeout())
	defer cancel()

	info := s.Feedback.GetModelInfo(ctx)
	if info == nil {
		return map[string]any{"available": false, "status": "unknown"}
	}

	status := map[string]any{
		"name":      info.Name,
		"available": info.Available,
		"status":    "ok",
	}
	if info.DisplayName != "" {
		status["display_name"] = info.DisplayName
	}
	if info.Error != "" {
		status["error"] = info.Error
		status["status"] = "unavailable"
	}
	return status
}

// checkCertificateHealth checks the health of the served TLS certificate
func (s *Server) checkCertificateHealth() map[string]any {
	if s.CertReloader == nil {
		return nil
	}

	certStatus := make(map[string]any)

	timeToExpiry, err := s.CertReloader.CheckExpiry()
	if err != nil {
		certStatus["healthy"] = false
		certStatus["error"] = fmt.Sprintf("Failed to check certificate expiry: %v", err)
		return certStatus
	}

	criticalThreshold := 24 * time.Hour
	warningThreshold := 7 * 24 * time.Hour

	certStatus["time_to_expiry_hours"] = int(timeToExpiry.Hours())
	certStatus["time_to_expiry"] = timeToExpiry.String()

	switch {
	case timeToExpiry <= 0:
		certStatus["healthy"] = false
		certStatus["status"] = "expired"
		certStatus["message"] = "Certificate has expired"
	case timeToExpiry <= criticalThreshold:
		certStatus["healthy"] = false
		certStatus["status"] = "critical"
		certStatus["message"] = "Certificate expires within 24 hours"
	case timeToExpiry <= warningThreshold:
		certStatus["healthy"] = true
		certStatus["status"] = "warning"
		certStatus["message"] = "Certificate expires within 7 days"
	default:
		certStatus["healthy"] = true
		certStatus["status"] = "ok"
		certStatus["message"] = "Certificate is valid"
	}

	certStatus["auto_reload"] = map[string]any{
		"enabled":       s.TLSConfig.AutoReload.Enabled,
		"running":       s.CertReloader.IsRunning(),
		"watched_files": s.CertReloader.WatchedFiles(),
	}
	certStatus["metrics"] = s.CertReloader.GetStats()

	return certStatus
}

// statsHandler provides server statistics including rate limiting and session info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "engagemeter",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"stream_read_limit":      s.streamReadLimit,
		},
		"sessions": s.Sessions.GetStats(),
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if statser, ok := s.Feedback.(interface{ GetStats() map[string]any }); ok {
		response["circuit_breakers"] = statser.GetStats()
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// writeAppError maps an application error to its HTTP status
func writeAppError(w http.ResponseWriter, title string, err error) {
	writeErrorResponse(w, title, err.Error(), statusForError(err))
}

func statusForError(err error) int {
	appErr, ok := appErrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch appErr.Type {
	case appErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case appErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case appErrors.ErrorTypeAI:
		if appErr.Code == appErrors.ErrCodeAIUnavailable {
			return http.StatusServiceUnavailable
		}
		if appErr.Code == appErrors.ErrCodeAITimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case appErrors.ErrorTypeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
