package observability

import (
	"time"
)

const defaultCollectionInterval = 15 * time.Second

// serviceVersion returns the configured version, or the build version when unset
func (om *ObservabilityManager) serviceVersion() string {
	if om.config.ServiceVersion != "" {
		return om.config.ServiceVersion
	}
	if om.version != "" {
		return om.version
	}
	return "dev"
}

// serviceInstanceID returns the service instance ID from config or a fallback
func (om *ObservabilityManager) serviceInstanceID() string {
	if om.config.ServiceInstance != "" {
		return om.config.ServiceInstance
	}
	return om.config.ServiceName + "-1"
}

func (om *ObservabilityManager) collectionInterval() time.Duration {
	if om.config.Metrics.CollectionInterval > 0 {
		return om.config.Metrics.CollectionInterval
	}
	return defaultCollectionInterval
}

func (om *ObservabilityManager) aiMetricsEnabled() bool {
	return om.config.CustomMetrics.AIOperations.Enabled
}

func (om *ObservabilityManager) trackAIDuration() bool {
	return om.config.CustomMetrics.AIOperations.TrackDuration
}

func (om *ObservabilityManager) trackTokenUsage() bool {
	return om.config.CustomMetrics.AIOperations.TrackTokenUsage
}

func (om *ObservabilityManager) trackFrames() bool {
	business := om.config.CustomMetrics.BusinessMetrics
	return business.Enabled && business.TrackFrames
}

func (om *ObservabilityManager) trackSessions() bool {
	business := om.config.CustomMetrics.BusinessMetrics
	return business.Enabled && business.TrackSessions
}

func (om *ObservabilityManager) trackRateLimits() bool {
	infra := om.config.CustomMetrics.Infrastructure
	return infra.Enabled && infra.TrackRateLimits
}

func (om *ObservabilityManager) trackCertReloads() bool {
	infra := om.config.CustomMetrics.Infrastructure
	return infra.Enabled && infra.TrackCertReloads
}
