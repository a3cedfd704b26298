package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/payhistory/internal/payments"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	events      map[string][]*payments.Event
	guids       map[string]bool
	instruments map[string]map[string]payments.Instrument
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string][]*payments.Event),
		guids:       make(map[string]bool),
		instruments: make(map[string]map[string]payments.Instrument),
	}
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *payments.Event, check CheckFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.guids[e.GUID] {
		return ErrDuplicateEvent
	}

	cp := *e
	if check != nil {
		log := append(copyEvents(m.events[e.ReferenceID]), &cp)
		if err := check(log); err != nil {
			return err
		}
	}

	m.events[e.ReferenceID] = append(m.events[e.ReferenceID], &cp)
	m.guids[e.GUID] = true
	return nil
}

func (m *MemoryStore) EventsForOrder(_ context.Context, ref string) ([]*payments.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyEvents(m.events[ref]), nil
}

func (m *MemoryStore) ListOrderRefs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]string, 0, len(m.events))
	for ref := range m.events {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

func (m *MemoryStore) InstrumentsForOrder(_ context.Context, ref string) ([]payments.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]payments.Instrument, 0, len(m.instruments[ref]))
	for _, inst := range m.instruments[ref] {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out, nil
}

func (m *MemoryStore) PutInstrument(_ context.Context, ref string, inst payments.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instruments[ref] == nil {
		m.instruments[ref] = make(map[string]payments.Instrument)
	}
	m.instruments[ref][inst.GUID] = inst
	return nil
}

func copyEvents(in []*payments.Event) []*payments.Event {
	out := make([]*payments.Event, len(in))
	for i, e := range in {
		cp := *e
		out[i] = &cp
	}
	return out
}
