package server

import (
	"fmt"
	"net"
	"strings"
)

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo(tlsEnabled bool) {
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	fmt.Printf("Starting server on %s://%s\n", scheme, net.JoinHostPort(s.Host, s.Port))
	s.displayTLSInfo(tlsEnabled)
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
	s.displayFeedbackInfo()
}

func (s *Server) displayTLSInfo(tlsEnabled bool) {
	if !tlsEnabled {
		fmt.Println("TLS mode: Disabled (HTTP only)")
		return
	}
	fmt.Println("TLS mode: Server-only (no client certificates required)")
	if s.CertReloader != nil {
		fmt.Println("TLS auto-reload: ENABLED (watching certificate files)")
	}
}

// displayEndpoints shows available API endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET    /health                  - Health check")
	fmt.Println("  GET    /stats                   - Server statistics")
	fmt.Println("  POST   /estimate                - Estimate one frame")
	fmt.Println("  POST   /sessions                - Create session")
	fmt.Println("  GET    /sessions/{id}           - Session summary")
	fmt.Println("  DELETE /sessions/{id}           - Delete session")
	fmt.Println("  POST   /sessions/{id}/frames    - Record frame")
	fmt.Println("  GET    /sessions/{id}/history   - Rolling history")
	fmt.Println("  POST   /sessions/{id}/feedback  - AI coaching feedback")
	fmt.Println("  GET    /sessions/{id}/stream    - WebSocket frame stream")
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if len(s.APIKeys) > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", len(s.APIKeys))
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to /estimate and /sessions")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
		fmt.Println("WARNING: No request size limits configured!")
	}
	fmt.Printf("Stream message limit: %d bytes\n", s.streamReadLimit)
	if len(s.AllowedOrigins) > 0 {
		fmt.Printf("Stream origins: same origin + %s\n", strings.Join(s.AllowedOrigins, ", "))
	} else {
		fmt.Println("Stream origins: same origin only")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
		fmt.Println("WARNING: No rate limiting configured!")
	}
}

func (s *Server) displayFeedbackInfo() {
	if s.Feedback == nil {
		fmt.Println("AI feedback: DISABLED (no API key configured)")
		return
	}
	fmt.Println("AI feedback: ENABLED")
}
