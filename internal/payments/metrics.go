package payments

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// QueriesTotal counts history queries by name.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payhistory",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Total payment history queries by name.",
		},
		[]string{"query"},
	)

	// QueryDuration observes query latency by name.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payhistory",
			Subsystem: "engine",
			Name:      "query_duration_seconds",
			Help:      "Payment history query duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"query"},
	)

	// ViolationsTotal counts rejected histories by invariant.
	ViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payhistory",
			Subsystem: "engine",
			Name:      "violations_total",
			Help:      "Payment histories rejected as inconsistent, by violated invariant.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryDuration,
		ViolationsTotal,
	)
}

// observeQuery increments the query counter and returns a function to observe duration.
func observeQuery(query string) func() {
	QueriesTotal.WithLabelValues(query).Inc()
	start := time.Now()
	return func() {
		QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}
