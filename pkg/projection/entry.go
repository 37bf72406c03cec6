package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

// Trade is one fill seen from the point of view of an order.
type Trade struct {
	CounterpartyID uint64          `json:"counterpartyId"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
}

// OrderEntry is the read-model of a single order.
type OrderEntry struct {
	OrderID          uint64          `json:"orderId"`
	EnteredAt        time.Time       `json:"enteredAt"`
	Instrument       string          `json:"instrument"`
	Price            decimal.Decimal `json:"price"`
	OriginalQuantity decimal.Decimal `json:"originalQuantity"`
	Side             cqrs.Side       `json:"side"`
	Trades           []Trade         `json:"trades"`
	PendingQuantity  decimal.Decimal `json:"pendingQuantity"`
}

// Clone returns a deep copy, safe to hand to readers.
func (e OrderEntry) Clone() OrderEntry {
	if e.Trades != nil {
		e.Trades = append([]Trade(nil), e.Trades...)
	}
	return e
}

// Filled returns the total quantity traded so far.
func (e OrderEntry) Filled() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range e.Trades {
		sum = sum.Add(t.Quantity)
	}
	return sum
}
