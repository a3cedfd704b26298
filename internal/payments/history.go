package payments

import (
	"fmt"
	"strings"

	"github.com/mbd888/payhistory/internal/money"
)

// DefaultCurrency is reported for histories with no events.
const DefaultCurrency = "USD"

// History answers financial questions about one order's payment log.
// It holds only configuration and is safe for concurrent use.
type History struct {
	mode     CaptureMode
	currency string
}

// Option configures a History.
type Option func(*History)

// WithCaptureMode selects how charges consume reservations.
func WithCaptureMode(m CaptureMode) Option {
	return func(h *History) {
		if m.Valid() {
			h.mode = m
		}
	}
}

// WithDefaultCurrency sets the currency of zero results for empty histories.
func WithDefaultCurrency(currency string) Option {
	return func(h *History) {
		if c := money.Normalize(currency); money.ValidCurrency(c) {
			h.currency = c
		}
	}
}

// NewHistory creates a History. Without options it closes reservations on
// charge and reports empty histories in USD.
func NewHistory(opts ...Option) *History {
	h := &History{mode: CaptureClose, currency: DefaultCurrency}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ParseCaptureMode converts a config value into a CaptureMode.
func ParseCaptureMode(s string) (CaptureMode, error) {
	m := CaptureMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return CaptureClose, nil
	}
	if !m.Valid() {
		return "", fmt.Errorf("payments: unknown capture mode %q", s)
	}
	return m, nil
}

// Mode returns the configured capture mode.
func (h *History) Mode() CaptureMode { return h.mode }

// Summary is every derived view of a history, resolved in one pass.
type Summary struct {
	Available  money.Money `json:"available"`
	Charged    money.Money `json:"charged"`
	Refunded   money.Money `json:"refunded"`
	Chargeable *Multimap   `json:"-"`
	Refundable *Multimap   `json:"-"`
}

// AvailableReservedAmount is what is still reserved and not yet charged.
func (h *History) AvailableReservedAmount(events []*Event) (money.Money, error) {
	return h.aggregate("available", events, func(r *resolution) money.Money { return r.reserved })
}

// ChargedAmount is approved charges net of approved reversals.
func (h *History) ChargedAmount(events []*Event) (money.Money, error) {
	return h.aggregate("charged", events, func(r *resolution) money.Money { return r.charged })
}

// RefundedAmount is the sum of approved credits, manual ones included.
func (h *History) RefundedAmount(events []*Event) (money.Money, error) {
	return h.aggregate("refunded", events, func(r *resolution) money.Money { return r.refunded })
}

// ChargeableEvents maps the effective reservation of every sequence that
// still holds money to the amount that can be charged against it.
func (h *History) ChargeableEvents(events []*Event) (*Multimap, error) {
	res, err := h.resolve("chargeable", events)
	if err != nil {
		return nil, err
	}
	return chargeable(res), nil
}

// RefundableEvents maps every approved charge with money left on it to the
// amount that can still be refunded.
func (h *History) RefundableEvents(events []*Event) (*Multimap, error) {
	res, err := h.resolve("refundable", events)
	if err != nil {
		return nil, err
	}
	return refundable(res), nil
}

// Validate checks every sequence on its own. Sequences in different
// currencies are fine here; only the aggregates refuse to add them up.
func (h *History) Validate(events []*Event) error {
	_, err := h.resolve("validate", events)
	return err
}

// Summarize resolves the history once and returns every view of it.
func (h *History) Summarize(events []*Event) (*Summary, error) {
	res, err := h.resolve("summary", events)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Chargeable: chargeable(res),
		Refundable: refundable(res),
	}
	if s.Available, err = h.total(res, func(r *resolution) money.Money { return r.reserved }); err != nil {
		return nil, countViolation(err)
	}
	if s.Charged, err = h.total(res, func(r *resolution) money.Money { return r.charged }); err != nil {
		return nil, countViolation(err)
	}
	if s.Refunded, err = h.total(res, func(r *resolution) money.Money { return r.refunded }); err != nil {
		return nil, countViolation(err)
	}
	return s, nil
}

func (h *History) aggregate(query string, events []*Event, pick func(*resolution) money.Money) (money.Money, error) {
	res, err := h.resolve(query, events)
	if err != nil {
		return money.Money{}, err
	}
	sum, err := h.total(res, pick)
	if err != nil {
		return money.Money{}, countViolation(err)
	}
	return sum, nil
}

// resolve builds the graph and resolves every sequence. The first violation
// fails the whole call.
func (h *History) resolve(query string, events []*Event) ([]*resolution, error) {
	done := observeQuery(query)
	defer done()

	res, err := resolveAll(events, h.mode)
	if err != nil {
		return nil, countViolation(err)
	}
	return res, nil
}

func countViolation(err error) error {
	ViolationsTotal.WithLabelValues(violationKind(err)).Inc()
	return err
}

func resolveAll(events []*Event, mode CaptureMode) ([]*resolution, error) {
	g, err := buildGraph(events)
	if err != nil {
		return nil, err
	}
	seqs, err := g.sequences()
	if err != nil {
		return nil, err
	}
	out := make([]*resolution, 0, len(seqs))
	for _, seq := range seqs {
		r, err := resolveSequence(g, seq, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// total sums one amount over every sequence that carries financial weight.
// Sequences in different currencies cannot be summed.
func (h *History) total(res []*resolution, pick func(*resolution) money.Money) (money.Money, error) {
	var sum *money.Money
	for _, r := range res {
		if !r.active() {
			continue
		}
		v := pick(r)
		if sum == nil {
			sum = &v
			continue
		}
		next, err := sum.Add(v)
		if err != nil {
			return money.Money{}, violation(ErrCurrencyMismatch, r.root.GUID, "",
				"%s sequence in a %s history", r.currency, sum.Currency)
		}
		sum = &next
	}
	if sum == nil {
		return money.Zero(h.currency), nil
	}
	return *sum, nil
}

func chargeable(res []*resolution) *Multimap {
	m := NewMultimap()
	for _, r := range res {
		if r.effective != nil && r.reserved.IsPositive() {
			m.Put(r.effective, r.reserved)
		}
	}
	return m
}

func refundable(res []*resolution) *Multimap {
	m := NewMultimap()
	for _, r := range res {
		for _, cs := range r.charges {
			if cs.refundable.IsPositive() {
				m.Put(cs.event, cs.refundable)
			}
		}
	}
	return m
}
