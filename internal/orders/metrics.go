package orders

import (
	"errors"

	"github.com/mbd888/payhistory/internal/payments"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsRecorded counts appended payment events by type and status.
	EventsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payhistory",
		Subsystem: "orders",
		Name:      "events_recorded_total",
		Help:      "Payment events appended to order logs.",
	}, []string{"type", "status"})

	// EventsRejected counts refused appends by reason.
	EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payhistory",
		Subsystem: "orders",
		Name:      "events_rejected_total",
		Help:      "Payment events refused by validation or consistency checks.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(EventsRecorded, EventsRejected)
}

func rejected(err error) {
	EventsRejected.WithLabelValues(rejectReason(err)).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate"
	case errors.Is(err, ErrUnknownParent):
		return "unknown_parent"
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrInvalidRef):
		return "invalid"
	case errors.Is(err, payments.ErrInconsistentHistory):
		return "inconsistent"
	default:
		return "store_error"
	}
}
