// Package reconciliation periodically audits every order's payment log and
// reports the orders whose history no longer resolves consistently.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/payhistory/internal/logging"
	"github.com/mbd888/payhistory/internal/payments"
)

// OrderSource lists orders and resolves their payment history.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]string, error)
	Validate(ctx context.Context, ref string) error
}

// Finding is one order that failed the audit.
type Finding struct {
	OrderRef string `json:"orderRef"`
	Sequence string `json:"sequence,omitempty"`
	Event    string `json:"event,omitempty"`
	Error    string `json:"error"`
}

// Report is the outcome of one audit run.
type Report struct {
	StartedAt    time.Time `json:"startedAt"`
	Duration     string    `json:"duration"`
	Audited      int       `json:"audited"`
	Failed       int       `json:"failed"`
	Inconsistent []Finding `json:"inconsistent"`
}

// Runner audits all orders from an OrderSource.
type Runner struct {
	source OrderSource
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex // one run at a time
	last *Report
}

// NewRunner creates an audit runner.
func NewRunner(source OrderSource, logger *slog.Logger) *Runner {
	return &Runner{source: source, logger: logger, now: time.Now}
}

// RunAll resolves every order once. Inconsistent histories are findings,
// not errors; only a failure to list orders fails the run. Orders whose
// history could not be loaded are counted in Failed.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := prometheus.NewTimer(auditDuration)
	defer timer.ObserveDuration()

	start := r.now()
	refs, err := r.source.ListOrders(ctx)
	if err != nil {
		auditErrors.Inc()
		return nil, fmt.Errorf("list orders: %w", err)
	}

	report := &Report{StartedAt: start.UTC(), Inconsistent: []Finding{}}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Audited++

		err := r.source.Validate(ctx, ref)
		switch {
		case err == nil:
		case errors.Is(err, payments.ErrInconsistentHistory):
			f := Finding{OrderRef: ref, Error: err.Error()}
			var ie *payments.InvariantError
			if errors.As(err, &ie) {
				f.Sequence, f.Event = ie.Root, ie.Event
			}
			report.Inconsistent = append(report.Inconsistent, f)
			logging.L(logging.WithOrderRef(ctx, ref)).Warn("inconsistent payment history found by audit",
				"sequence", f.Sequence, "event", f.Event, "error", err)
		default:
			report.Failed++
			auditErrors.Inc()
			r.logger.Error("audit could not resolve order", "order_ref", ref, "error", err)
		}
	}

	report.Duration = r.now().Sub(start).String()
	auditOrders.Set(float64(report.Audited))
	auditInconsistentOrders.Set(float64(len(report.Inconsistent)))
	r.last = report

	r.logger.Info("payment audit complete",
		"audited", report.Audited, "inconsistent", len(report.Inconsistent), "failed", report.Failed)
	return report, nil
}

// LastReport returns the most recent completed run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
