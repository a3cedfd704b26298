package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSequences_GroupsByRoot(t *testing.T) {
	l := newLog()
	r1 := l.add(nil, Reserve, Approved, 100)
	r2 := l.add(nil, Reserve, Approved, 50)
	m1 := l.add(r1, ModifyReserve, Approved, 80)
	c1 := l.add(m1, Charge, Approved, 80)
	c2 := l.add(r2, Charge, Approved, 50)
	cr := l.add(c1, Credit, Approved, 10)

	seqs, err := BuildSequences(l.events)
	require.NoError(t, err)
	require.Len(t, seqs, 2)

	assert.Equal(t, r1, seqs[0].Root)
	assert.Equal(t, []*Event{r1, m1, c1, cr}, seqs[0].Events)
	assert.Equal(t, r2, seqs[1].Root)
	assert.Equal(t, []*Event{r2, c2}, seqs[1].Events)
}

func TestBuildSequences_InputOrderDoesNotMatter(t *testing.T) {
	l := newLog()
	r := l.add(nil, Reserve, Approved, 100)
	c := l.add(r, Charge, Approved, 100)
	cr := l.add(c, Credit, Approved, 10)

	seqs, err := BuildSequences([]*Event{cr, c, r})
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, []*Event{r, c, cr}, seqs[0].Events)
}

func TestBuildSequences_Rejects(t *testing.T) {
	l := newLog()
	r := l.add(nil, Reserve, Approved, 100)

	_, err := BuildSequences([]*Event{r, nil})
	assert.ErrorIs(t, err, ErrIllegalTopology)

	_, err = BuildSequences([]*Event{{Type: Reserve, Status: Approved}})
	assert.ErrorIs(t, err, ErrIllegalTopology)

	self := l.add(nil, ModifyReserve, Approved, 10)
	self.ParentGUID = self.GUID
	_, err = BuildSequences([]*Event{r, self})
	assert.ErrorIs(t, err, ErrIllegalTopology)

	orphan := l.add(nil, Charge, Approved, 10)
	orphan.ParentGUID = "gone"
	_, err = BuildSequences([]*Event{r, orphan})
	assert.ErrorIs(t, err, ErrOrphanEvent)

	bad := l.add(nil, Reserve, "PENDING", 10)
	_, err = BuildSequences([]*Event{bad})
	assert.ErrorIs(t, err, ErrIllegalTopology)
}

func TestInvariantError_Message(t *testing.T) {
	err := violation(ErrOverRefunded, "ev-01", "ev-02", "returned %s against a charge of %s", cad(110), cad(100))
	assert.Equal(t,
		"payments: inconsistent payment history: refunded beyond charge (sequence ev-01, event ev-02): returned 110.00 CAD against a charge of 100.00 CAD",
		err.Error())

	err = violation(ErrIllegalTopology, "", "", "nil event")
	assert.Equal(t, "payments: inconsistent payment history: illegal event topology: nil event", err.Error())
}

func TestViolationKind(t *testing.T) {
	assert.Equal(t, "ambiguous_order", violationKind(violation(ErrAmbiguousOrder, "a", "b", "")))
	assert.Equal(t, "orphan_event", violationKind(violation(ErrOrphanEvent, "", "b", "")))
	assert.Equal(t, "illegal_topology", violationKind(violation(ErrIllegalTopology, "", "b", "")))
	assert.Equal(t, "currency_mismatch", violationKind(violation(ErrCurrencyMismatch, "a", "", "")))
	assert.Equal(t, "over_charged", violationKind(violation(ErrOverCharged, "a", "", "")))
	assert.Equal(t, "over_refunded", violationKind(violation(ErrOverRefunded, "a", "", "")))
	assert.Equal(t, "other", violationKind(assert.AnError))
}

func TestLegalTransition(t *testing.T) {
	legal := map[TransactionType][]TransactionType{
		Reserve:       {ModifyReserve, Charge, CancelReserve},
		ModifyReserve: {ModifyReserve, Charge, CancelReserve},
		Charge:        {Charge, Credit, ManualCredit, ReverseCharge},
	}
	all := []TransactionType{Reserve, ModifyReserve, CancelReserve, Charge, ReverseCharge, Credit, ManualCredit}

	for _, parent := range all {
		for _, child := range all {
			want := false
			for _, ok := range legal[parent] {
				if ok == child {
					want = true
				}
			}
			assert.Equal(t, want, legalTransition(parent, child), "%s -> %s", parent, child)
		}
	}
}
