package payments

import (
	"errors"
	"fmt"
)

// ErrInconsistentHistory is the root of every invariant violation. A caller
// seeing it should treat the order's payment log as corrupt and escalate.
var ErrInconsistentHistory = errors.New("payments: inconsistent payment history")

var (
	ErrAmbiguousOrder   = fmt.Errorf("%w: ambiguous event order", ErrInconsistentHistory)
	ErrIllegalTopology  = fmt.Errorf("%w: illegal event topology", ErrInconsistentHistory)
	ErrOrphanEvent      = fmt.Errorf("%w: parent event not found", ErrIllegalTopology)
	ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", ErrInconsistentHistory)
	ErrOverCharged      = fmt.Errorf("%w: charged beyond reservation", ErrInconsistentHistory)
	ErrOverRefunded     = fmt.Errorf("%w: refunded beyond charge", ErrInconsistentHistory)
)

// InvariantError pins a violation to the sequence and event that caused it.
type InvariantError struct {
	Kind   error
	Root   string
	Event  string
	Detail string
}

func (e *InvariantError) Error() string {
	msg := e.Kind.Error()
	if e.Root != "" {
		msg += " (sequence " + e.Root
		if e.Event != "" && e.Event != e.Root {
			msg += ", event " + e.Event
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvariantError) Unwrap() error { return e.Kind }

func violation(kind error, root, event, format string, args ...any) error {
	return &InvariantError{
		Kind:   kind,
		Root:   root,
		Event:  event,
		Detail: fmt.Sprintf(format, args...),
	}
}

// violationKind maps an error to a short metric label.
func violationKind(err error) string {
	switch {
	case errors.Is(err, ErrAmbiguousOrder):
		return "ambiguous_order"
	case errors.Is(err, ErrOrphanEvent):
		return "orphan_event"
	case errors.Is(err, ErrIllegalTopology):
		return "illegal_topology"
	case errors.Is(err, ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, ErrOverCharged):
		return "over_charged"
	case errors.Is(err, ErrOverRefunded):
		return "over_refunded"
	default:
		return "other"
	}
}
