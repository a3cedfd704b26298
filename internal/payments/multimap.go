package payments

import "github.com/mbd888/payhistory/internal/money"

// Multimap maps events to one or more amounts, keeping keys in insertion
// order. The zero value is empty and ready to use.
type Multimap struct {
	keys   []*Event
	values map[string][]money.Money
}

// Entry is one event/amount pair of a Multimap.
type Entry struct {
	Event  *Event      `json:"event"`
	Amount money.Money `json:"amount"`
}

// NewMultimap creates an empty multimap.
func NewMultimap() *Multimap {
	return &Multimap{values: make(map[string][]money.Money)}
}

// Put appends amount under e.
func (m *Multimap) Put(e *Event, amount money.Money) {
	if m.values == nil {
		m.values = make(map[string][]money.Money)
	}
	if _, ok := m.values[e.GUID]; !ok {
		m.keys = append(m.keys, e)
	}
	m.values[e.GUID] = append(m.values[e.GUID], amount)
}

// Get returns the amounts stored under e, or nil.
func (m *Multimap) Get(e *Event) []money.Money {
	if e == nil {
		return nil
	}
	return m.GetByGUID(e.GUID)
}

// GetByGUID returns the amounts stored under the event with the given GUID.
func (m *Multimap) GetByGUID(guid string) []money.Money {
	vals := m.values[guid]
	if len(vals) == 0 {
		return nil
	}
	out := make([]money.Money, len(vals))
	copy(out, vals)
	return out
}

// Keys returns the distinct events in insertion order.
func (m *Multimap) Keys() []*Event {
	out := make([]*Event, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns every stored amount, flattened in key order.
func (m *Multimap) Values() []money.Money {
	var out []money.Money
	for _, k := range m.keys {
		out = append(out, m.values[k.GUID]...)
	}
	return out
}

// Entries returns every event/amount pair in key order.
func (m *Multimap) Entries() []Entry {
	var out []Entry
	for _, k := range m.keys {
		for _, v := range m.values[k.GUID] {
			out = append(out, Entry{Event: k, Amount: v})
		}
	}
	return out
}

// Len is the number of event/amount pairs.
func (m *Multimap) Len() int {
	n := 0
	for _, vals := range m.values {
		n += len(vals)
	}
	return n
}

// IsEmpty reports whether the multimap holds no pairs.
func (m *Multimap) IsEmpty() bool { return m.Len() == 0 }
