package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	auditInconsistentOrders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payhistory",
		Subsystem: "audit",
		Name:      "inconsistent_orders",
		Help:      "Orders whose payment history failed consistency checks in the last audit run.",
	})

	auditOrders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payhistory",
		Subsystem: "audit",
		Name:      "orders_audited",
		Help:      "Orders examined in the last audit run.",
	})

	auditDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "payhistory",
		Subsystem: "audit",
		Name:      "run_duration_seconds",
		Help:      "Duration of audit runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	auditErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payhistory",
		Subsystem: "audit",
		Name:      "errors_total",
		Help:      "Total audit failures not caused by an inconsistent history.",
	})
)

func init() {
	prometheus.MustRegister(
		auditInconsistentOrders,
		auditOrders,
		auditDuration,
		auditErrors,
	)
}
