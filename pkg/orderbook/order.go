package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

// Order is a resting book entry. Remaining is always > 0 while the order is
// in the book.
type Order struct {
	ID        uint64
	Side      cqrs.Side
	Price     decimal.Decimal
	Remaining decimal.Decimal
	Sequence  uint64 // tie-break only; assigned when the order rests
}

type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal // total remaining qty at this price level
	Orders   int
}

// Bids: highest price first, then earliest sequence.
func bidLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.Sequence < b.Sequence
}

// Asks: lowest price first, then earliest sequence.
func askLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.Sequence < b.Sequence
}

// crosses reports whether an incoming order of side at limit can trade
// against a resting order priced at resting.
func crosses(side cqrs.Side, limit, resting decimal.Decimal) bool {
	if side == cqrs.Buy {
		return resting.LessThanOrEqual(limit)
	}
	return resting.GreaterThanOrEqual(limit)
}
