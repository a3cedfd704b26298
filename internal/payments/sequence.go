package payments

// Sequence is one payment sequence: a root reservation and every event
// transitively chained under it. Events are listed root first, then breadth
// first in input order.
type Sequence struct {
	Root   *Event
	Events []*Event
}

// graph is the event forest of one call: events by GUID and children by
// parent GUID.
type graph struct {
	byGUID   map[string]*Event
	children map[string][]*Event
	roots    []*Event
	size     int
}

func buildGraph(events []*Event) (*graph, error) {
	g := &graph{
		byGUID:   make(map[string]*Event, len(events)),
		children: make(map[string][]*Event),
	}

	for _, e := range events {
		if e == nil {
			return nil, violation(ErrIllegalTopology, "", "", "nil event")
		}
		if e.GUID == "" {
			return nil, violation(ErrIllegalTopology, "", "", "event without guid")
		}
		if !e.Type.Valid() {
			return nil, violation(ErrIllegalTopology, "", e.GUID, "unknown transaction type %q", e.Type)
		}
		if !e.Status.Valid() {
			return nil, violation(ErrIllegalTopology, "", e.GUID, "unknown status %q", e.Status)
		}
		if _, dup := g.byGUID[e.GUID]; dup {
			return nil, violation(ErrIllegalTopology, "", e.GUID, "duplicate guid")
		}
		g.byGUID[e.GUID] = e
	}
	g.size = len(g.byGUID)

	for _, e := range events {
		if e.IsRoot() {
			g.roots = append(g.roots, e)
			continue
		}
		if e.ParentGUID == e.GUID {
			return nil, violation(ErrIllegalTopology, "", e.GUID, "event is its own parent")
		}
		if _, ok := g.byGUID[e.ParentGUID]; !ok {
			return nil, violation(ErrOrphanEvent, "", e.GUID, "parent %s", e.ParentGUID)
		}
		g.children[e.ParentGUID] = append(g.children[e.ParentGUID], e)
	}

	return g, nil
}

func (g *graph) parent(e *Event) *Event {
	if e.IsRoot() {
		return nil
	}
	return g.byGUID[e.ParentGUID]
}

// sequences walks every root. Events never reached belong to a parent cycle.
func (g *graph) sequences() ([]Sequence, error) {
	seqs := make([]Sequence, 0, len(g.roots))
	seen := 0

	for _, root := range g.roots {
		members := []*Event{root}
		for i := 0; i < len(members); i++ {
			members = append(members, g.children[members[i].GUID]...)
		}
		seen += len(members)
		seqs = append(seqs, Sequence{Root: root, Events: members})
	}

	if seen != g.size {
		for guid := range g.byGUID {
			if !g.reachable(guid) {
				return nil, violation(ErrIllegalTopology, "", guid, "parent cycle")
			}
		}
	}
	return seqs, nil
}

func (g *graph) reachable(guid string) bool {
	e := g.byGUID[guid]
	for steps := 0; steps <= g.size; steps++ {
		if e.IsRoot() {
			return true
		}
		e = g.byGUID[e.ParentGUID]
	}
	return false
}

// BuildSequences partitions events into payment sequences keyed by the
// order their roots appear in the input.
func BuildSequences(events []*Event) ([]Sequence, error) {
	g, err := buildGraph(events)
	if err != nil {
		return nil, err
	}
	return g.sequences()
}
