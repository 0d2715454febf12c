package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"engagemeter/internal/config"
	"engagemeter/internal/errors"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// setupPrometheusExporter creates a Prometheus reader backed by its own registry
// and the handler that serves it.
func setupPrometheusExporter(cfg config.PrometheusConfig) (metric.Reader, http.Handler, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// PrometheusServer serves the metrics endpoint on a dedicated port
type PrometheusServer struct {
	server *http.Server
	logger *errors.Logger
}

// StartPrometheusServer starts a dedicated HTTP server for Prometheus metrics.
// It returns nil when Prometheus is disabled.
func (om *ObservabilityManager) StartPrometheusServer(logger *errors.Logger) *PrometheusServer {
	if om.prometheusHandler == nil {
		return nil
	}

	endpoint := om.config.Prometheus.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, om.prometheusHandler)

	addr := ":" + om.config.Prometheus.Port
	ps := &PrometheusServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}

	logger.Info("Starting Prometheus metrics server", "address", addr, "endpoint", endpoint)
	go func() {
		if err := ps.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(err, "Prometheus server error")
		}
	}()

	return ps
}

// Shutdown stops the metrics server
func (ps *PrometheusServer) Shutdown(ctx context.Context) error {
	if ps == nil {
		return nil
	}
	return ps.server.Shutdown(ctx)
}

// PrometheusHandler returns the scrape handler, or nil when Prometheus is disabled
func (om *ObservabilityManager) PrometheusHandler() http.Handler {
	return om.prometheusHandler
}
