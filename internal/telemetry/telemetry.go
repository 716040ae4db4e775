// Package telemetry registers the Prometheus metrics shared across the
// lookup pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparador_searches_total",
			Help: "Total reference lookups, labeled by store and outcome.",
		},
		[]string{"store", "outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparador_cache_lookups_total",
			Help: "Store cache lookups, labeled by store and hit/miss.",
		},
		[]string{"store", "result"},
	)

	throttleDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comparador_throttle_delay_seconds",
			Help:    "Time spent waiting in the rate governor before navigation.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"store"},
	)

	slowMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comparador_governor_slow_mode",
			Help: "1 while a store's governor is in slow mode.",
		},
		[]string{"store"},
	)
)

// CountSearch records one lookup outcome: "found", "not_found" or "error".
func CountSearch(store, outcome string) {
	searchesTotal.WithLabelValues(store, outcome).Inc()
}

// CountCacheLookup records a cache "hit" or "miss".
func CountCacheLookup(store, result string) {
	cacheLookupsTotal.WithLabelValues(store, result).Inc()
}

// ObserveThrottleDelay records how long a navigation waited in the
// governor.
func ObserveThrottleDelay(store string, d time.Duration) {
	throttleDelaySeconds.WithLabelValues(store).Observe(d.Seconds())
}

// SetSlowMode flips the slow-mode gauge for a store.
func SetSlowMode(store string, slow bool) {
	v := 0.0
	if slow {
		v = 1.0
	}
	slowMode.WithLabelValues(store).Set(v)
}
