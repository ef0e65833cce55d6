package bind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the binding metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tapas").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: a private registry, so nothing is exported.
	Registry prometheus.Registerer
}

// MetricsOption configures the binding metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics are the counters a controller updates. One Metrics value is
// shared by every controller of a process.
type Metrics struct {
	bindingsApplied *prometheus.CounterVec
	effectsFired    *prometheus.CounterVec
	notifications   prometheus.Counter
	elementsBound   prometheus.Gauge
	itemsCreated    prometheus.Counter
	itemsRemoved    prometheus.Counter
	bindErrors      *prometheus.CounterVec
}

// NewMetrics registers the binding metrics.
//
// Metrics collected:
//   - tapas_bindings_applied_total: bindings evaluated, by kind
//   - tapas_effects_fired_total: bindings whose value changed, by kind
//   - tapas_store_notifications_total: selector refreshes after a dispatch
//   - tapas_elements_bound: registered elements
//   - tapas_list_items_created_total / tapas_list_items_removed_total
//   - tapas_binding_errors_total: failures, by error code
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{Namespace: "tapas"}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		bindingsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "bindings_applied_total",
			Help:        "Total number of binding evaluations",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		effectsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "effects_fired_total",
			Help:        "Total number of binding side effects performed",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "store_notifications_total",
			Help:        "Total number of selector refreshes triggered by the store",
			ConstLabels: config.ConstLabels,
		}),

		elementsBound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "elements_bound",
			Help:        "Number of elements currently registered",
			ConstLabels: config.ConstLabels,
		}),

		itemsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "list_items_created_total",
			Help:        "Total number of list items stamped from a template",
			ConstLabels: config.ConstLabels,
		}),

		itemsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "list_items_removed_total",
			Help:        "Total number of list items torn down",
			ConstLabels: config.ConstLabels,
		}),

		bindErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "binding_errors_total",
			Help:        "Total number of binding failures by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
	}
}
