package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartOperationsTotal counts cart mutations by operation and outcome.
	CartOperationsTotal *prometheus.CounterVec
	// CartPersistTotal counts debounced storage writes by outcome.
	CartPersistTotal *prometheus.CounterVec
	// CartPersistLatency records storage write latency in milliseconds.
	CartPersistLatency *prometheus.HistogramVec
	// CartRehydrateTotal counts cart loads by outcome (ok, empty, corrupt, error).
	CartRehydrateTotal *prometheus.CounterVec
	// CartActiveSessions tracks live in-memory cart sessions.
	CartActiveSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers cart Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartOperationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Count of cart operations by outcome.",
		}, []string{"operation", "result"}))
		CartPersistTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_persist_total",
			Help:      "Count of cart persistence writes by outcome.",
		}, []string{"result"}))
		CartPersistLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_persist_duration_ms",
			Help:      "Latency for cart persistence writes in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"}))
		CartRehydrateTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rehydrate_total",
			Help:      "Count of cart rehydration attempts by outcome.",
		}, []string{"result"}))
		CartActiveSessions = registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_active_sessions",
			Help:      "Number of cart sessions held in memory.",
		}))
	})
}

// ObserveCartOperation increments the operation counter when metrics are registered.
func ObserveCartOperation(operation, result string) {
	if CartOperationsTotal == nil {
		return
	}
	CartOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObservePersist records a storage write outcome when metrics are registered.
func ObservePersist(result string, millis float64) {
	if CartPersistTotal != nil {
		CartPersistTotal.WithLabelValues(result).Inc()
	}
	if CartPersistLatency != nil {
		CartPersistLatency.WithLabelValues(result).Observe(millis)
	}
}

// ObserveRehydrate records a cart load outcome when metrics are registered.
func ObserveRehydrate(result string) {
	if CartRehydrateTotal == nil {
		return
	}
	CartRehydrateTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions updates the session gauge when metrics are registered.
func SetActiveSessions(n int) {
	if CartActiveSessions == nil {
		return
	}
	CartActiveSessions.Set(float64(n))
}
