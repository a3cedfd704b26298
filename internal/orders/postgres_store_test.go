//go:build integration

package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/payhistory/internal/money"
	"github.com/mbd888/payhistory/internal/payments"
	"github.com/mbd888/payhistory/internal/testutil"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgresStore_AppendAndRead(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	r1 := newEvent("ORD-1", "r1", "", payments.Reserve, 100)
	r1.InstrumentGUID = "opi-1"
	m1 := newEvent("ORD-1", "m1", "r1", payments.ModifyReserve, 80)
	m1.Amount, _ = money.Parse("80.25", "cad")
	m1.Date = testDate.Add(time.Minute)

	require.NoError(t, s.AppendEvent(ctx, r1, nil))
	require.NoError(t, s.AppendEvent(ctx, m1, nil))

	log, err := s.EventsForOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, log, 2)

	assert.Equal(t, "r1", log[0].GUID)
	assert.Empty(t, log[0].ParentGUID)
	assert.Equal(t, "opi-1", log[0].InstrumentGUID)
	assert.Equal(t, "ORD-1", log[0].ReferenceID)
	assert.True(t, log[0].Date.Equal(testDate))

	assert.Equal(t, "r1", log[1].ParentGUID)
	assert.Empty(t, log[1].InstrumentGUID)
	assert.Equal(t, payments.ModifyReserve, log[1].Type)
	assert.True(t, log[1].Amount.Equal(money.New(m1.Amount.Amount, "CAD")), log[1].Amount.String())

	// the engine reads straight from the store
	available, err := payments.NewHistory().AvailableReservedAmount(log)
	require.NoError(t, err)
	assert.Equal(t, "80.25 CAD", available.String())
}

func TestPostgresStore_Duplicate(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-1", "r1", "", payments.Reserve, 100), nil))
	err := s.AppendEvent(ctx, newEvent("ORD-2", "r1", "", payments.Reserve, 100), nil)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestPostgresStore_CheckRejects(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-1", "r1", "", payments.Reserve, 100), nil))

	errNo := errors.New("no")
	var seen int
	err := s.AppendEvent(ctx, newEvent("ORD-1", "c1", "r1", payments.Charge, 10), func(log []*payments.Event) error {
		seen = len(log)
		return errNo
	})
	assert.ErrorIs(t, err, errNo)
	assert.Equal(t, 2, seen)

	log, err := s.EventsForOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestPostgresStore_ConcurrentChecksSerialize(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()
	history := payments.NewHistory(payments.WithCaptureMode(payments.CapturePartial))

	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-1", "r1", "", payments.Reserve, 100), nil))

	// ten charges of 20 against 100: exactly five fit
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newEvent("ORD-1", "c"+string(rune('a'+i)), "r1", payments.Charge, 20)
			err := s.AppendEvent(ctx, e, func(log []*payments.Event) error {
				_, err := history.Summarize(log)
				return err
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, accepted)
}

func TestPostgresStore_OrderRefsAndInstruments(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-2", "a", "", payments.Reserve, 1), nil))
	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-1", "b", "", payments.Reserve, 1), nil))
	require.NoError(t, s.AppendEvent(ctx, newEvent("ORD-1", "c", "", payments.Reserve, 1), nil))

	refs, err := s.ListOrderRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD-1", "ORD-2"}, refs)

	require.NoError(t, s.PutInstrument(ctx, "ORD-1", payments.Instrument{GUID: "opi-2", Limit: money.FromInt(50, "CAD")}))
	require.NoError(t, s.PutInstrument(ctx, "ORD-1", payments.Instrument{GUID: "opi-1", Limit: money.Zero("CAD")}))
	require.NoError(t, s.PutInstrument(ctx, "ORD-1", payments.Instrument{GUID: "opi-2", Limit: money.FromInt(75, "CAD")}))

	insts, err := s.InstrumentsForOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "opi-1", insts[0].GUID)
	assert.True(t, insts[0].Unlimited())
	assert.True(t, insts[1].Limit.Equal(money.FromInt(75, "CAD")))
}

func TestPostgresStore_KeepsMicrosecondsAndSixDecimals(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	r1 := newEvent("ORD-1", "r1", "", payments.Reserve, 0)
	r1.Amount, _ = money.Parse("12.345678", "CAD")
	r1.Date = testDate.Add(time.Microsecond)
	require.NoError(t, s.AppendEvent(ctx, r1, nil))

	log, err := s.EventsForOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].Date.Equal(r1.Date), log[0].Date.String())
	assert.True(t, log[0].Amount.Equal(r1.Amount), log[0].Amount.Amount.String())
}
