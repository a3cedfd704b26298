package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/payhistory/internal/idgen"
	"github.com/mbd888/payhistory/internal/logging"
	"github.com/mbd888/payhistory/internal/money"
	"github.com/mbd888/payhistory/internal/pagination"
	"github.com/mbd888/payhistory/internal/payments"
	"github.com/mbd888/payhistory/internal/retry"
	"github.com/mbd888/payhistory/internal/syncutil"
	"github.com/mbd888/payhistory/internal/traces"
	"github.com/mbd888/payhistory/internal/validation"
)

// ErrUnknownParent is returned when a new event names a parent that is not
// part of the same order.
var ErrUnknownParent = fmt.Errorf("%w: parent event not found in order", ErrInvalidEvent)

// RecordRequest describes a payment event reported by a payment provider.
type RecordRequest struct {
	GUID           string     `json:"guid"`
	ParentGUID     string     `json:"parentGuid"`
	Type           string     `json:"type" binding:"required"`
	Status         string     `json:"status" binding:"required"`
	Amount         string     `json:"amount" binding:"required"`
	Currency       string     `json:"currency" binding:"required"`
	Date           *time.Time `json:"date"`
	InstrumentGUID string     `json:"instrumentGuid"`
}

// Service serves the payment history of orders from a Store.
type Service struct {
	store   Store
	history *payments.History
	locks   *syncutil.KeyedMutex
	retry   retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an order payment service.
func NewService(store Store, history *payments.History, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		history: history,
		locks:   syncutil.NewKeyedMutex(0),
		retry:   retry.DefaultPolicy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// History returns the engine the service runs queries with.
func (s *Service) History() *payments.History { return s.history }

// ListOrders returns every order with a payment log.
func (s *Service) ListOrders(ctx context.Context) ([]string, error) {
	return s.store.ListOrderRefs(ctx)
}

// Events returns one page of an order's log in append order.
func (s *Service) Events(ctx context.Context, ref, cursor string, limit int) ([]*payments.Event, string, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Events", traces.OrderRef(ref))
	defer span.End()

	log, err := s.load(ctx, ref)
	if err != nil {
		traces.Fail(span, err)
		return nil, "", err
	}
	page, next, err := pagination.Page(log, cursor, limit, func(e *payments.Event) string { return e.GUID })
	if err != nil {
		return nil, "", err
	}
	span.SetAttributes(traces.EventCount(len(page)))
	return page, next, nil
}

// Summary resolves the order's history once and returns every view of it.
func (s *Service) Summary(ctx context.Context, ref string) (*payments.Summary, error) {
	return query(ctx, s, "orders.Summary", ref, s.history.Summarize)
}

// Validate resolves every sequence of the order without adding amounts up
// across sequences.
func (s *Service) Validate(ctx context.Context, ref string) error {
	_, err := query(ctx, s, "orders.Validate", ref, func(log []*payments.Event) (struct{}, error) {
		return struct{}{}, s.history.Validate(log)
	})
	return err
}

// Chargeable returns the events that can still be charged against.
func (s *Service) Chargeable(ctx context.Context, ref string) (*payments.Multimap, error) {
	return query(ctx, s, "orders.Chargeable", ref, s.history.ChargeableEvents)
}

// Refundable returns the charges that can still be refunded.
func (s *Service) Refundable(ctx context.Context, ref string) (*payments.Multimap, error) {
	return query(ctx, s, "orders.Refundable", ref, s.history.RefundableEvents)
}

// Reservable returns how much more each registered instrument of the order
// can reserve. Unlimited instruments report zero.
func (s *Service) Reservable(ctx context.Context, ref string) (map[string]money.Money, error) {
	return query(ctx, s, "orders.Reservable", ref, func(log []*payments.Event) (map[string]money.Money, error) {
		insts, err := s.store.InstrumentsForOrder(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load instruments: %w", err)
		}
		return s.history.ReservableInstruments(log, insts)
	})
}

// query loads an order's log and runs one engine query over it.
func query[T any](ctx context.Context, s *Service, name, ref string, run func([]*payments.Event) (T, error)) (T, error) {
	var zero T
	ctx, span := traces.StartSpan(ctx, name, traces.OrderRef(ref))
	defer span.End()
	ctx = s.orderContext(ctx, ref)

	log, err := s.load(ctx, ref)
	if err != nil {
		traces.Fail(span, err)
		return zero, err
	}
	span.SetAttributes(traces.EventCount(len(log)))

	out, err := run(log)
	if err != nil {
		traces.Fail(span, err)
		if errors.Is(err, payments.ErrInconsistentHistory) {
			logging.L(ctx).Warn("inconsistent payment history", "query", name, "error", err)
		}
		return zero, err
	}
	return out, nil
}

// orderContext tags ctx with the order and falls back to the service logger
// when the caller did not attach one.
func (s *Service) orderContext(ctx context.Context, ref string) context.Context {
	if s.logger != nil && logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, s.logger)
	}
	return logging.WithOrderRef(ctx, ref)
}

func (s *Service) load(ctx context.Context, ref string) ([]*payments.Event, error) {
	if !validation.IsValidIdentifier(ref, validation.MaxRefLength) {
		return nil, ErrInvalidRef
	}
	log, err := s.store.EventsForOrder(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return log, nil
}

// Record validates req and appends it to the order's log. The append is
// rejected, and nothing is stored, when the parent is not in the order or
// the resulting history would be inconsistent.
func (s *Service) Record(ctx context.Context, ref string, req RecordRequest) (*payments.Event, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Record", traces.OrderRef(ref), traces.EventType(req.Type))
	defer span.End()
	ctx = s.orderContext(ctx, ref)

	e, err := s.buildEvent(ref, req)
	if err != nil {
		rejected(err)
		traces.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(traces.EventGUID(e.GUID), traces.Currency(e.Amount.Currency))

	unlock, err := s.locks.Lock(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		err := s.store.AppendEvent(ctx, e, s.consistent(e))
		if err != nil && !transient(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		rejected(err)
		traces.Fail(span, err)
		if errors.Is(err, payments.ErrInconsistentHistory) {
			logging.L(ctx).Warn("payment event rejected", "guid", e.GUID, "type", e.Type, "error", err)
		}
		return nil, err
	}

	EventsRecorded.WithLabelValues(string(e.Type), string(e.Status)).Inc()
	logging.L(ctx).Info("payment event recorded",
		"guid", e.GUID, "type", e.Type, "status", e.Status, "amount", e.Amount.String())
	return e, nil
}

// consistent checks the candidate log: the parent must already be in the
// order and every sequence must still resolve. Sequences in different
// currencies are accepted; only the aggregate queries refuse to add them up.
func (s *Service) consistent(e *payments.Event) CheckFunc {
	return func(log []*payments.Event) error {
		if contains(log[:len(log)-1], e.GUID) {
			return ErrDuplicateEvent
		}
		if e.ParentGUID != "" && !contains(log, e.ParentGUID) {
			return ErrUnknownParent
		}
		return s.history.Validate(log)
	}
}

func contains(log []*payments.Event, guid string) bool {
	for _, e := range log {
		if e.GUID == guid {
			return true
		}
	}
	return false
}

func (s *Service) buildEvent(ref string, req RecordRequest) (*payments.Event, error) {
	if !validation.IsValidIdentifier(ref, validation.MaxRefLength) {
		return nil, ErrInvalidRef
	}
	if errs := validation.Validate(
		validation.Required("type", req.Type),
		validation.Required("status", req.Status),
		validation.Required("amount", req.Amount),
		validation.Required("currency", req.Currency),
		validation.Identifier("guid", req.GUID),
		validation.Identifier("parentGuid", req.ParentGUID),
		validation.Identifier("instrumentGuid", req.InstrumentGUID),
		validation.NonNegativeAmount("amount", req.Amount),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, errs.Error())
	}

	typ := payments.TransactionType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, req.Type)
	}
	status := payments.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, req.Status)
	}
	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if typ == payments.Reserve && req.ParentGUID != "" {
		return nil, fmt.Errorf("%w: a reservation cannot have a parent", ErrInvalidEvent)
	}
	if typ != payments.Reserve && req.ParentGUID == "" {
		return nil, fmt.Errorf("%w: %s requires a parentGuid", ErrInvalidEvent, typ)
	}

	// Dates are checked at the precision the store keeps them.
	e := &payments.Event{
		GUID:           req.GUID,
		ParentGUID:     req.ParentGUID,
		Type:           typ,
		Status:         status,
		Amount:         amount,
		Date:           s.now().Truncate(time.Microsecond),
		InstrumentGUID: req.InstrumentGUID,
		ReferenceID:    ref,
	}
	if e.GUID == "" {
		e.GUID = idgen.NewGUID()
	}
	if req.Date != nil {
		e.Date = req.Date.UTC().Truncate(time.Microsecond)
	}
	return e, nil
}

// PutInstrument registers or updates an order payment instrument. A zero
// limit makes the instrument unlimited.
func (s *Service) PutInstrument(ctx context.Context, ref, guid, limit, currency string) (payments.Instrument, error) {
	ctx, span := traces.StartSpan(ctx, "orders.PutInstrument", traces.OrderRef(ref))
	defer span.End()

	if !validation.IsValidIdentifier(ref, validation.MaxRefLength) {
		return payments.Instrument{}, ErrInvalidRef
	}
	if !validation.IsValidIdentifier(guid, validation.MaxGUIDLength) {
		return payments.Instrument{}, fmt.Errorf("%w: invalid instrument guid", ErrInvalidEvent)
	}
	amount, err := money.Parse(limit, currency)
	if err != nil {
		return payments.Instrument{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	inst := payments.Instrument{GUID: guid, Limit: amount}
	if err := s.store.PutInstrument(ctx, ref, inst); err != nil {
		traces.Fail(span, err)
		return payments.Instrument{}, fmt.Errorf("store instrument: %w", err)
	}
	logging.L(s.orderContext(ctx, ref)).Info("payment instrument registered",
		"instrument", guid, "limit", amount.String())
	return inst, nil
}

// transient reports whether a failed append is worth retrying.
func transient(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateEvent),
		errors.Is(err, ErrInvalidEvent),
		errors.Is(err, ErrInvalidRef),
		errors.Is(err, payments.ErrInconsistentHistory),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
