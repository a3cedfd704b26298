// Package orders stores the payment log of each order and serves the
// payment history views computed from it.
package orders

import (
	"context"
	"errors"

	"github.com/mbd888/payhistory/internal/payments"
)

var (
	ErrDuplicateEvent = errors.New("orders: event already recorded")
	ErrInvalidEvent   = errors.New("orders: invalid event")
	ErrInvalidRef     = errors.New("orders: invalid order reference")
)

// CheckFunc inspects an order's log with the candidate event appended and
// rejects the append by returning an error.
type CheckFunc func(log []*payments.Event) error

// Store persists payment events and order payment instruments.
type Store interface {
	// AppendEvent stores e under e.ReferenceID. When check is non-nil it
	// runs against the order's log plus e while the order is locked, and a
	// non-nil result aborts the append.
	AppendEvent(ctx context.Context, e *payments.Event, check CheckFunc) error

	// EventsForOrder returns every event of an order in append order. An
	// unknown order has an empty log.
	EventsForOrder(ctx context.Context, ref string) ([]*payments.Event, error)

	// ListOrderRefs returns every order reference with at least one event.
	ListOrderRefs(ctx context.Context) ([]string, error)

	InstrumentsForOrder(ctx context.Context, ref string) ([]payments.Instrument, error)
	PutInstrument(ctx context.Context, ref string, inst payments.Instrument) error
}
