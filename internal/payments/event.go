// Package payments reconstructs the financial state of an order from its
// append-only log of payment events.
//
// Events are linked by parent GUID into a forest. Each tree is a payment
// sequence rooted at a reservation; the History queries resolve every
// sequence and report what is still reserved, what was charged and refunded,
// and which events may be charged or refunded next. Nothing is persisted and
// no state survives between calls.
package payments

import (
	"time"

	"github.com/mbd888/payhistory/internal/money"
)

// TransactionType is the kind of operation an event records.
type TransactionType string

const (
	Reserve       TransactionType = "RESERVE"
	ModifyReserve TransactionType = "MODIFY_RESERVE"
	CancelReserve TransactionType = "CANCEL_RESERVE"
	Charge        TransactionType = "CHARGE"
	ReverseCharge TransactionType = "REVERSE_CHARGE"
	Credit        TransactionType = "CREDIT"
	ManualCredit  TransactionType = "MANUAL_CREDIT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case Reserve, ModifyReserve, CancelReserve, Charge, ReverseCharge, Credit, ManualCredit:
		return true
	}
	return false
}

// reservation reports whether t belongs to the reservation chain of a sequence.
func (t TransactionType) reservation() bool {
	return t == Reserve || t == ModifyReserve || t == CancelReserve
}

func (t TransactionType) refund() bool {
	return t == Credit || t == ManualCredit
}

// Status is the outcome reported by the payment provider for an event.
type Status string

const (
	Approved Status = "APPROVED"
	Failed   Status = "FAILED"
	Skipped  Status = "SKIPPED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Approved || s == Failed || s == Skipped
}

// Event is one immutable entry of an order's payment log.
type Event struct {
	GUID           string          `json:"guid"`
	ParentGUID     string          `json:"parentGuid,omitempty"`
	Type           TransactionType `json:"type"`
	Status         Status          `json:"status"`
	Amount         money.Money     `json:"amount"`
	Date           time.Time       `json:"date"`
	InstrumentGUID string          `json:"instrumentGuid,omitempty"`
	ReferenceID    string          `json:"referenceId,omitempty"`
}

// IsRoot reports whether e starts a new payment sequence.
func (e *Event) IsRoot() bool { return e.ParentGUID == "" }

// Approved reports whether e carries financial weight.
func (e *Event) Approved() bool { return e.Status == Approved }

// Instrument is an order payment instrument with an optional reservation
// limit. A zero limit means the instrument is unlimited.
type Instrument struct {
	GUID  string      `json:"guid"`
	Limit money.Money `json:"limit"`
}

// Unlimited reports whether the instrument has no reservation limit.
func (i Instrument) Unlimited() bool { return i.Limit.IsZero() }

// legalTransition is the closed set of parent -> child type pairs a sequence
// may contain.
func legalTransition(parent, child TransactionType) bool {
	switch parent {
	case Reserve, ModifyReserve:
		return child == ModifyReserve || child == Charge || child == CancelReserve
	case Charge:
		return child == Charge || child == Credit || child == ManualCredit || child == ReverseCharge
	}
	return false
}
