package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"engagemeter/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// configureTLS sets up TLS configuration based on the mode
func (s *Server) configureTLS(httpServer *http.Server, om *observability.ObservabilityManager) error {
	switch s.TLSConfig.Mode {
	case "server":
		return s.configureServerTLS(httpServer, om)
	case "disabled", "":
		return nil
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled' or 'server')", s.TLSConfig.Mode)
	}
}

// configureServerTLS sets up server-only TLS
func (s *Server) configureServerTLS(httpServer *http.Server, om *observability.ObservabilityManager) error {
	if err := s.setupCertReloader(om); err != nil {
		return err
	}

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	httpServer.TLSConfig = tlsConfig
	return nil
}

// setupCertReloader starts watching the keypair when auto-reload is enabled
func (s *Server) setupCertReloader(om *observability.ObservabilityManager) error {
	if !s.TLSConfig.AutoReload.Enabled {
		return nil
	}

	reloader, err := NewCertReloader(s.TLSConfig.CertFile, s.TLSConfig.KeyFile, s.TLSConfig.AutoReload.DebounceDelay, s.Logger)
	if err != nil {
		return err
	}

	metrics := om.GetMetrics()
	reloader.OnReload(func(success bool, notAfter time.Time, err error) {
		ctx := context.Background()
		metrics.RecordBusinessMetric(ctx, observability.MetricCertReload, success, om,
			attribute.String("source", "file"))
		metrics.RecordCertExpiry(ctx, notAfter, om)
	})
	metrics.RecordCertExpiry(context.Background(), reloader.NotAfter(), om)

	if err := reloader.Start(); err != nil {
		return fmt.Errorf("failed to start certificate reloader: %w", err)
	}
	s.CertReloader = reloader
	return nil
}

// buildTLSConfig creates the TLS configuration
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion(s.TLSConfig.MinVersion),
		ClientAuth: tls.NoClientCert,
	}

	if s.CertReloader != nil {
		tlsConfig.GetCertificate = s.CertReloader.GetCertificate
		return tlsConfig, nil
	}

	if s.TLSConfig.CertFile == "" || s.TLSConfig.KeyFile == "" {
		return nil, fmt.Errorf("TLS certificate and key files are required")
	}
	cert, err := tls.LoadX509KeyPair(s.TLSConfig.CertFile, s.TLSConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server cert/key from files: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tlsConfig, nil
}

// tlsMinVersion maps "1.2" / "1.3" to the crypto/tls constant, defaulting to 1.2
func tlsMinVersion(v string) uint16 {
	if v == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
