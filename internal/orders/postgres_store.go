package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mbd888/payhistory/internal/payments"
)

const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// AppendEvent serializes appends per order with a transaction-scoped
// advisory lock, so the check always sees the order's full log.
func (s *PostgresStore) AppendEvent(ctx context.Context, e *payments.Event, check CheckFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.ReferenceID); err != nil {
		return fmt.Errorf("lock order %s: %w", e.ReferenceID, err)
	}

	if check != nil {
		log, err := eventsForOrder(ctx, tx, e.ReferenceID)
		if err != nil {
			return err
		}
		cp := *e
		if err := check(append(log, &cp)); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_events (guid, order_ref, parent_guid, transaction_type, status, amount, currency, event_date, instrument_guid)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::NUMERIC(20,6), $7, $8, NULLIF($9, ''))
	`, e.GUID, e.ReferenceID, e.ParentGUID, string(e.Type), string(e.Status),
		e.Amount.Amount, e.Amount.Currency, e.Date, e.InstrumentGUID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert event %s: %w", e.GUID, err)
	}

	return tx.Commit()
}

func (s *PostgresStore) EventsForOrder(ctx context.Context, ref string) ([]*payments.Event, error) {
	return eventsForOrder(ctx, s.db, ref)
}

func eventsForOrder(ctx context.Context, q querier, ref string) ([]*payments.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT guid, order_ref, COALESCE(parent_guid, ''), transaction_type, status, amount, currency, event_date, COALESCE(instrument_guid, '')
		FROM payment_events
		WHERE order_ref = $1
		ORDER BY id ASC
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*payments.Event, 0)
	for rows.Next() {
		e := &payments.Event{}
		var typ, status string
		if err := rows.Scan(&e.GUID, &e.ReferenceID, &e.ParentGUID, &typ, &status,
			&e.Amount.Amount, &e.Amount.Currency, &e.Date, &e.InstrumentGUID); err != nil {
			return nil, err
		}
		e.Type = payments.TransactionType(typ)
		e.Status = payments.Status(status)
		e.Date = e.Date.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListOrderRefs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT order_ref FROM payment_events ORDER BY order_ref
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) InstrumentsForOrder(ctx context.Context, ref string) ([]payments.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, limit_amount, currency
		FROM order_payment_instruments
		WHERE order_ref = $1
		ORDER BY guid
	`, ref)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]payments.Instrument, 0)
	for rows.Next() {
		var inst payments.Instrument
		if err := rows.Scan(&inst.GUID, &inst.Limit.Amount, &inst.Limit.Currency); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutInstrument(ctx context.Context, ref string, inst payments.Instrument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_payment_instruments (order_ref, guid, limit_amount, currency, updated_at)
		VALUES ($1, $2, $3::NUMERIC(20,6), $4, NOW())
		ON CONFLICT (order_ref, guid) DO UPDATE
		SET limit_amount = EXCLUDED.limit_amount, currency = EXCLUDED.currency, updated_at = NOW()
	`, ref, inst.GUID, inst.Limit.Amount, inst.Limit.Currency)
	return err
}
