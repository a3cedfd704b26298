package payments

import "github.com/mbd888/payhistory/internal/money"

// ReservableInstruments reports, per instrument GUID, how much more may be
// reserved on it. Unlimited instruments are always reported with a zero
// amount. A limited instrument is reported only while its limit exceeds
// what it already holds (available + charged - refunded).
//
// Sequences are attributed to the instrument of their root reservation, and
// the whole history must be consistent for any instrument to be reported.
func (h *History) ReservableInstruments(events []*Event, instruments []Instrument) (map[string]money.Money, error) {
	res, err := h.resolve("reservable", events)
	if err != nil {
		return nil, err
	}

	byInstrument := make(map[string][]*resolution)
	for _, r := range res {
		byInstrument[r.root.InstrumentGUID] = append(byInstrument[r.root.InstrumentGUID], r)
	}

	out := make(map[string]money.Money, len(instruments))
	for _, inst := range instruments {
		if inst.Unlimited() {
			out[inst.GUID] = money.Zero(currencyOr(inst.Limit.Currency, h.currency))
			continue
		}

		used := money.Zero(inst.Limit.Currency)
		for _, r := range byInstrument[inst.GUID] {
			if !r.active() {
				continue
			}
			if r.currency != used.Currency {
				return nil, violation(ErrCurrencyMismatch, r.root.GUID, "",
					"%s sequence on a %s instrument %s", r.currency, used.Currency, inst.GUID)
			}
			used = mustAdd(used, r.reserved)
			used = mustAdd(used, r.charged)
			used = mustSub(used, r.refunded)
		}

		left := mustSub(inst.Limit, used)
		if left.IsPositive() {
			out[inst.GUID] = left
		}
	}
	return out, nil
}

func currencyOr(currency, fallback string) string {
	if c := money.Normalize(currency); c != "" {
		return c
	}
	return fallback
}
