// Package metrics exports resource and kv engine activity to Prometheus.
//
// Nothing is collected until InitRegistry is called. Before that the
// constructors return nil and resources, pipelines and the kv manager fall
// back to their no-op sinks:
//
//	metrics.InitRegistry()
//	p := pipeline.New(resolvers, processors, pipeline.WithMetrics(metrics.NewResourceMetrics()))
//	manager := kv.NewManager(kv.ManagerConfig{Metrics: metrics.NewEngineMetrics()})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// namespace prefixes every metric exported by this package.
const namespace = "dittores"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process registry. Besides the resource and
// engine collectors registered later by the constructors, it carries the
// Go runtime and process collectors so a scrape shows memory held by open
// badger engines and sessions. Calling it again is a no-op.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		)
		registry = reg
	})
}

// GetRegistry returns the process registry, or nil before InitRegistry.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
