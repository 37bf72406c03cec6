package orderbook

import (
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

const treeDegree = 32

// Engine is the limit order book of a single instrument.
//
// Engine does no locking: it must only be driven by the one goroutine that
// owns its instrument. Unknown ids and cancellations that would not shrink an
// order are silently ignored so that replaying the same sourcing event is
// harmless.
type Engine struct {
	instrument string

	// Ordered sides, best order at Min()
	bids *btree.BTreeG[*Order]
	asks *btree.BTreeG[*Order]

	// Order index for O(1) existence checks and cancellation
	index map[uint64]*Order

	sequence uint64
}

func NewEngine(instrument string) *Engine {
	return &Engine{
		instrument: instrument,
		bids:       btree.NewG(treeDegree, bidLess),
		asks:       btree.NewG(treeDegree, askLess),
		index:      make(map[uint64]*Order),
	}
}

func (e *Engine) Instrument() string { return e.instrument }

func (e *Engine) book(side cqrs.Side) *btree.BTreeG[*Order] {
	if side == cqrs.Buy {
		return e.bids
	}
	return e.asks
}

// Place matches an incoming limit order against the opposite side by
// price-time priority and rests whatever is left. A second Place with an id
// already resting is a no-op.
func (e *Engine) Place(id uint64, ts time.Time, side cqrs.Side, price, qty decimal.Decimal) []cqrs.UpdateEvent {
	if _, exists := e.index[id]; exists {
		return nil
	}

	opposite := e.book(side.Opposite())
	var events []cqrs.UpdateEvent

	for qty.IsPositive() {
		resting, ok := opposite.Min()
		if !ok || !crosses(side, price, resting.Price) {
			break
		}

		prev := resting.Remaining
		if prev.GreaterThan(qty) {
			resting.Remaining = prev.Sub(qty)
			events = append(events, e.matched(resting, prev, ts, id, side, price, qty))
			return events
		}

		opposite.Delete(resting)
		delete(e.index, resting.ID)
		resting.Remaining = decimal.Zero
		events = append(events, e.matched(resting, prev, ts, id, side, price, qty))

		qty = qty.Sub(prev)
	}

	if qty.IsPositive() {
		events = append(events, e.rest(id, ts, side, price, qty))
	}
	return events
}

func (e *Engine) matched(resting *Order, prev decimal.Decimal, ts time.Time, id uint64, side cqrs.Side, price, qty decimal.Decimal) cqrs.OrderMatched {
	return cqrs.OrderMatched{
		RestingID:       resting.ID,
		InstrumentID:    e.instrument,
		Timestamp:       ts,
		IncomingID:      id,
		IncomingSide:    side,
		IncomingPrice:   price,
		RestingPrice:    resting.Price,
		IncomingQty:     qty,
		PrevRestingQty:  prev,
		RestingQtyAfter: resting.Remaining,
	}
}

func (e *Engine) rest(id uint64, ts time.Time, side cqrs.Side, price, qty decimal.Decimal) cqrs.OrderPlaced {
	e.sequence++
	o := &Order{ID: id, Side: side, Price: price, Remaining: qty, Sequence: e.sequence}
	e.book(side).ReplaceOrInsert(o)
	e.index[id] = o

	return cqrs.OrderPlaced{
		OrderID:      id,
		InstrumentID: e.instrument,
		Timestamp:    ts,
		Side:         side,
		Price:        price,
		Quantity:     qty,
	}
}

// Cancel shrinks a resting order to newQty. Resizing keeps the order's place
// in the queue; newQty of zero removes it. Cancels that would not strictly
// shrink the order, or that name an unknown id, produce no events.
func (e *Engine) Cancel(id uint64, newQty decimal.Decimal) []cqrs.UpdateEvent {
	o, ok := e.index[id]
	if !ok {
		return nil
	}
	if newQty.IsNegative() {
		newQty = decimal.Zero
	}

	remaining := o.Remaining
	if newQty.GreaterThanOrEqual(remaining) {
		return nil
	}

	if newQty.IsPositive() {
		o.Remaining = newQty
	} else {
		e.book(o.Side).Delete(o)
		delete(e.index, id)
	}

	return []cqrs.UpdateEvent{cqrs.OrderCanceled{
		OrderID:      id,
		InstrumentID: e.instrument,
		Side:         o.Side,
		CanceledQty:  remaining.Sub(newQty),
		RemainingQty: newQty,
	}}
}

func (e *Engine) CancelAll(id uint64) []cqrs.UpdateEvent {
	return e.Cancel(id, decimal.Zero)
}

// ==============================
// Read helpers
// ==============================

// Order returns a copy of a resting order.
func (e *Engine) Order(id uint64) (Order, bool) {
	o, ok := e.index[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Len returns the number of resting orders on both sides.
func (e *Engine) Len() int { return len(e.index) }

func (e *Engine) BestBid() (decimal.Decimal, bool) {
	o, ok := e.bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return o.Price, true
}

func (e *Engine) BestAsk() (decimal.Decimal, bool) {
	o, ok := e.asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return o.Price, true
}

// Orders returns copies of the resting orders of one side in priority order.
func (e *Engine) Orders(side cqrs.Side) []Order {
	var out []Order
	e.book(side).Ascend(func(o *Order) bool {
		out = append(out, *o)
		return true
	})
	return out
}

// Depth aggregates each side into price levels, best price first.
func (e *Engine) Depth() (bids, asks []PriceLevel) {
	return levels(e.bids), levels(e.asks)
}

func levels(t *btree.BTreeG[*Order]) []PriceLevel {
	var out []PriceLevel
	t.Ascend(func(o *Order) bool {
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(o.Remaining)
			out[n-1].Orders++
			return true
		}
		out = append(out, PriceLevel{Price: o.Price, Quantity: o.Remaining, Orders: 1})
		return true
	})
	return out
}
