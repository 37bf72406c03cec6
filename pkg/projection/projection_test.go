package projection

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/orderbook"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func feed(t *testing.T, p *Projection, evs []cqrs.UpdateEvent) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, p.Apply(ev))
	}
}

func requireEntry(t *testing.T, p *Projection, id uint64) OrderEntry {
	t.Helper()
	e, ok := p.Get(id)
	require.True(t, ok, "order %d missing from projection", id)
	return e
}

func TestPlacedCreatesEntry(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("BTC-USD")

	feed(t, p, eng.Place(1, t0, cqrs.Buy, d("100"), d("2")))

	e := requireEntry(t, p, 1)
	assert.Equal(t, "BTC-USD", e.Instrument)
	assert.Equal(t, cqrs.Buy, e.Side)
	assert.Equal(t, t0, e.EnteredAt)
	assert.True(t, e.OriginalQuantity.Equal(d("2")))
	assert.True(t, e.PendingQuantity.Equal(d("2")))
	assert.Empty(t, e.Trades)

	_, ok := p.Get(2)
	assert.False(t, ok)
}

func TestPartialFillsAgainstSingleResting(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("BTC-USD")

	feed(t, p, eng.Place(10, t0, cqrs.Sell, d("43251"), d("1.0")))
	feed(t, p, eng.Place(11, t0, cqrs.Buy, d("43250"), d("0.25")))
	feed(t, p, eng.Place(12, t0, cqrs.Buy, d("43253"), d("0.35")))

	resting := requireEntry(t, p, 10)
	assert.True(t, resting.PendingQuantity.Equal(d("0.65")))
	require.Len(t, resting.Trades, 1)
	assert.Equal(t, uint64(12), resting.Trades[0].CounterpartyID)
	assert.True(t, resting.Trades[0].Quantity.Equal(d("0.35")))
	assert.True(t, resting.Trades[0].Price.Equal(d("43251")))

	incoming := requireEntry(t, p, 12)
	assert.True(t, incoming.PendingQuantity.IsZero())
	assert.True(t, incoming.OriginalQuantity.Equal(d("0.35")))
	assert.True(t, incoming.Price.Equal(d("43253")))
	require.Len(t, incoming.Trades, 1)
	assert.True(t, incoming.Trades[0].Price.Equal(d("43251")), "trades execute at the resting price")

	feed(t, p, eng.Place(14, t0, cqrs.Buy, d("43251"), d("0.65")))
	resting = requireEntry(t, p, 10)
	assert.True(t, resting.PendingQuantity.IsZero())
	assert.Len(t, resting.Trades, 2)
	assert.True(t, resting.Filled().Equal(d("1.0")))
}

func TestIncomingAcrossSeveralRestingOrders(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("X")

	feed(t, p, eng.Place(1, t0, cqrs.Sell, d("10.05"), d("20")))
	feed(t, p, eng.Place(2, t0, cqrs.Sell, d("10.04"), d("20")))
	feed(t, p, eng.Place(3, t0, cqrs.Sell, d("10.05"), d("40")))
	feed(t, p, eng.Place(7, t0, cqrs.Buy, d("10.06"), d("55")))

	in := requireEntry(t, p, 7)
	assert.True(t, in.OriginalQuantity.Equal(d("55")))
	assert.True(t, in.PendingQuantity.IsZero())
	require.Len(t, in.Trades, 3)
	assert.Equal(t, []uint64{2, 1, 3}, []uint64{in.Trades[0].CounterpartyID, in.Trades[1].CounterpartyID, in.Trades[2].CounterpartyID})
	assert.True(t, in.Filled().Equal(d("55")))

	third := requireEntry(t, p, 3)
	assert.True(t, third.PendingQuantity.Equal(d("25")))
}

func TestIncomingThatRestsKeepsOriginalQuantity(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("X")

	feed(t, p, eng.Place(1, t0, cqrs.Sell, d("10"), d("3")))
	feed(t, p, eng.Place(2, t0, cqrs.Buy, d("10"), d("5")))

	e := requireEntry(t, p, 2)
	assert.True(t, e.OriginalQuantity.Equal(d("5")))
	assert.True(t, e.PendingQuantity.Equal(d("2")))
	assert.Len(t, e.Trades, 1)
}

func TestCanceledUpdatesPending(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("X")

	feed(t, p, eng.Place(1, t0, cqrs.Buy, d("1000"), d("100")))
	feed(t, p, eng.Cancel(1, d("75")))
	assert.True(t, requireEntry(t, p, 1).PendingQuantity.Equal(d("75")))

	feed(t, p, eng.CancelAll(1))
	e := requireEntry(t, p, 1)
	assert.True(t, e.PendingQuantity.IsZero())
	assert.True(t, e.OriginalQuantity.Equal(d("100")))

	// Cancel of an order the projection never saw is ignored.
	require.NoError(t, p.Apply(cqrs.OrderCanceled{OrderID: 99, RemainingQty: d("1")}))
	_, ok := p.Get(99)
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	p := New(NewMemoryStore(4), nil, nil)
	eng := orderbook.NewEngine("X")
	feed(t, p, eng.Place(1, t0, cqrs.Sell, d("10"), d("3")))
	feed(t, p, eng.Place(2, t0, cqrs.Buy, d("10"), d("1")))

	e := requireEntry(t, p, 1)
	e.Trades[0].Quantity = d("999")
	e.PendingQuantity = d("999")

	again := requireEntry(t, p, 1)
	assert.True(t, again.Trades[0].Quantity.Equal(d("1")))
	assert.True(t, again.PendingQuantity.Equal(d("2")))
}

func TestHandleIgnoresSourcingEvents(t *testing.T) {
	store := NewMemoryStore(4)
	p := New(store, nil, nil)
	p.Handle(cqrs.OrderAccepted{InstrumentID: "X", OrderID: 1, Quantity: d("1"), Price: d("1")})
	assert.Equal(t, 0, store.Len())
}

func TestConcurrentInstruments(t *testing.T) {
	store := NewMemoryStore(8)
	p := New(store, nil, nil)

	const books, orders = 8, 200
	var wg sync.WaitGroup
	for b := 0; b < books; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			eng := orderbook.NewEngine("I")
			base := uint64(b*orders*2) + 1
			for i := uint64(0); i < orders; i++ {
				for _, ev := range eng.Place(base+2*i, t0, cqrs.Sell, d("10"), d("1")) {
					assert.NoError(t, p.Apply(ev))
				}
				for _, ev := range eng.Place(base+2*i+1, t0, cqrs.Buy, d("10"), d("1")) {
					assert.NoError(t, p.Apply(ev))
				}
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, books*orders*2, store.Len())
	for id := uint64(1); id <= books*orders*2; id++ {
		e, ok := p.Get(id)
		require.True(t, ok)
		assert.True(t, e.PendingQuantity.IsZero(), "order %d", id)
	}
}
