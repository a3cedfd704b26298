package payments

import (
	"sort"
	"time"

	"github.com/mbd888/payhistory/internal/money"
)

// CaptureMode decides what an approved charge does to the reservation it
// was taken against.
type CaptureMode string

const (
	// CaptureClose settles the reservation on charge: whatever was not
	// charged is released, and a leftover has to be re-reserved as a new
	// sequence. A reservation node dated after the last approved charge
	// re-opens the sequence; one dated at the same instant is ambiguous.
	//
	// Until such a node arrives, available is zero after a charge, not the
	// effective amount minus the charges. That formula holds only under
	// CapturePartial.
	CaptureClose CaptureMode = "close"

	// CapturePartial keeps the uncharged remainder reserved: the sequence
	// reserves the effective amount minus every approved charge.
	CapturePartial CaptureMode = "partial"
)

// Valid reports whether m is a known capture mode.
func (m CaptureMode) Valid() bool {
	return m == CaptureClose || m == CapturePartial
}

// chargeState is an approved charge and what can still be refunded from it.
type chargeState struct {
	event      *Event
	refundable money.Money
}

// resolution is the resolved financial state of one sequence.
type resolution struct {
	root      *Event
	currency  string
	effective *Event // latest approved reservation node; nil when none or cancelled
	reserved  money.Money
	charged   money.Money
	refunded  money.Money
	charges   []chargeState
	approved  bool // at least one approved event
}

// active reports whether the sequence carries any financial weight.
func (r *resolution) active() bool { return r.approved }

func resolveSequence(g *graph, seq Sequence, mode CaptureMode) (*resolution, error) {
	root := seq.Root
	if root.Type != Reserve {
		return nil, violation(ErrIllegalTopology, root.GUID, root.GUID, "sequence rooted at %s", root.Type)
	}

	currency := money.Normalize(root.Amount.Currency)
	for _, e := range seq.Events {
		if money.Normalize(e.Amount.Currency) != currency {
			return nil, violation(ErrCurrencyMismatch, root.GUID, e.GUID, "%s in a %s sequence", e.Amount.Currency, currency)
		}
		p := g.parent(e)
		if p == nil {
			continue
		}
		if e.Type == Reserve {
			return nil, violation(ErrIllegalTopology, root.GUID, e.GUID, "reservation chained under %s", p.GUID)
		}
		if !legalTransition(p.Type, e.Type) {
			return nil, violation(ErrIllegalTopology, root.GUID, e.GUID, "%s -> %s", p.Type, e.Type)
		}
	}

	r := &resolution{
		root:     root,
		currency: currency,
		reserved: money.Zero(currency),
		charged:  money.Zero(currency),
		refunded: money.Zero(currency),
	}

	latest, err := effectiveNode(seq)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Type != CancelReserve {
		r.effective = latest
	}

	var lastCharge *Event
	for _, e := range seq.Events {
		if !e.Approved() {
			continue
		}
		r.approved = true
		switch {
		case e.Type == Charge:
			r.charged = mustAdd(r.charged, e.Amount)
			if lastCharge == nil || e.Date.After(lastCharge.Date) {
				lastCharge = e
			}
		case e.Type == ReverseCharge:
			r.charged = mustSub(r.charged, e.Amount)
		case e.Type.refund():
			r.refunded = mustAdd(r.refunded, e.Amount)
		}
	}

	for _, e := range seq.Events {
		if e.Type != Charge {
			continue
		}
		cs, err := resolveCharge(g, root, e)
		if err != nil {
			return nil, err
		}
		if e.Approved() {
			r.charges = append(r.charges, cs)
		}
	}

	if r.effective == nil {
		return r, nil
	}

	switch mode {
	case CapturePartial:
		consumed := money.Zero(currency)
		for _, cs := range r.charges {
			consumed = mustAdd(consumed, cs.event.Amount)
		}
		left := mustSub(r.effective.Amount, consumed)
		if left.IsNegative() {
			return nil, violation(ErrOverCharged, root.GUID, r.effective.GUID,
				"reserved %s, charged %s", r.effective.Amount, consumed)
		}
		r.reserved = left
	default:
		if lastCharge != nil && r.effective.Date.Equal(lastCharge.Date) {
			return nil, violation(ErrAmbiguousOrder, root.GUID, r.effective.GUID,
				"%s and charge %s share date %s", r.effective.GUID, lastCharge.GUID, lastCharge.Date.UTC().Format(time.RFC3339Nano))
		}
		if lastCharge == nil || r.effective.Date.After(lastCharge.Date) {
			r.reserved = r.effective.Amount
		}
	}

	return r, nil
}

// effectiveNode picks the latest approved node of the reservation chain.
// Several approved nodes sharing the latest date make the override order
// ambiguous; that is rejected, never decided by sort order.
func effectiveNode(seq Sequence) (*Event, error) {
	var chain []*Event
	for _, e := range seq.Events {
		if e.Type.reservation() && e.Approved() {
			chain = append(chain, e)
		}
	}
	if len(chain) == 0 {
		return nil, nil
	}

	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Date.Before(chain[j].Date)
	})

	latest := chain[len(chain)-1]
	if len(chain) > 1 && chain[len(chain)-2].Date.Equal(latest.Date) {
		return nil, violation(ErrAmbiguousOrder, seq.Root.GUID, latest.GUID,
			"%s and %s share date %s", chain[len(chain)-2].GUID, latest.GUID, latest.Date.UTC().Format(time.RFC3339Nano))
	}
	return latest, nil
}

// resolveCharge nets a charge against the approved credits and reversals
// chained directly under it. A charge that was not approved has nothing to
// give back.
func resolveCharge(g *graph, root, charge *Event) (chargeState, error) {
	base := money.Zero(charge.Amount.Currency)
	if charge.Approved() {
		base = charge.Amount
	}

	left := base
	for _, child := range g.children[charge.GUID] {
		if !child.Approved() {
			continue
		}
		if child.Type.refund() || child.Type == ReverseCharge {
			left = mustSub(left, child.Amount)
		}
	}
	if left.IsNegative() {
		return chargeState{}, violation(ErrOverRefunded, root.GUID, charge.GUID,
			"returned %s against a charge of %s", mustSub(base, left), base)
	}
	return chargeState{event: charge, refundable: left}, nil
}

// mustAdd and mustSub are only used after the sequence currency check, so a
// mismatch here is a programming error.
func mustAdd(a, b money.Money) money.Money {
	sum, err := a.Add(b)
	if err != nil {
		panic(err)
	}
	return sum
}

func mustSub(a, b money.Money) money.Money {
	diff, err := a.Sub(b)
	if err != nil {
		panic(err)
	}
	return diff
}
