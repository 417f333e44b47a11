package config

import (
	"github.com/marmos91/dittores/pkg/backend/kv"
	"github.com/marmos91/dittores/pkg/metrics"
	"github.com/marmos91/dittores/pkg/resource"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Resources receives resource operation events (nil if disabled, which
	// resources treat as no-op)
	Resources resource.Metrics

	// Engines receives kv engine table events (nil if disabled)
	Engines kv.ManagerMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled every field is nil and components fall back to
// their no-op implementations.
//
// Collectors register on the global registry, so this must be called at
// most once per process with metrics enabled.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
		Resources: metrics.NewResourceMetrics(),
		Engines:   metrics.NewEngineMetrics(),
	}
}
