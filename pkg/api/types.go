package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/orderbook"
	"github.com/uhyunpark/matchcore/pkg/projection"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
// Quantity and price positivity is checked by the instrument itself so
// that rejections are recorded on its event stream.
type SubmitOrderRequest struct {
	Instrument string          `json:"instrument" validate:"required,max=64"`
	Side       string          `json:"side" validate:"required,oneof=buy sell BUY SELL"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// CancelOrderRequest is the optional payload for
// POST /api/v1/orders/{id}/cancel. Without a quantity the whole order is
// cancelled.
type CancelOrderRequest struct {
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

// ==============================
// REST Response Types
// ==============================

const (
	StatusOpen            = "open"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCanceled        = "canceled"
)

type TradeInfo struct {
	CounterpartyID uint64          `json:"counterpartyId"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
}

// OrderStatus is the read-model view of an order.
type OrderStatus struct {
	OrderID          uint64          `json:"orderId"`
	Instrument       string          `json:"instrument"`
	Side             cqrs.Side       `json:"side"`
	Price            decimal.Decimal `json:"price"`
	OriginalQuantity decimal.Decimal `json:"originalQuantity"`
	FilledQuantity   decimal.Decimal `json:"filledQuantity"`
	PendingQuantity  decimal.Decimal `json:"pendingQuantity"`
	Status           string          `json:"status"`
	EnteredAt        time.Time       `json:"enteredAt"`
	Trades           []TradeInfo     `json:"trades"`
}

func newOrderStatus(e projection.OrderEntry) OrderStatus {
	filled := e.Filled()
	trades := make([]TradeInfo, len(e.Trades))
	for i, t := range e.Trades {
		trades[i] = TradeInfo{CounterpartyID: t.CounterpartyID, Quantity: t.Quantity, Price: t.Price}
	}

	var status string
	switch {
	case e.PendingQuantity.IsPositive() && filled.IsPositive():
		status = StatusPartiallyFilled
	case e.PendingQuantity.IsPositive():
		status = StatusOpen
	case filled.GreaterThanOrEqual(e.OriginalQuantity):
		status = StatusFilled
	default:
		status = StatusCanceled
	}

	return OrderStatus{
		OrderID:          e.OrderID,
		Instrument:       e.Instrument,
		Side:             e.Side,
		Price:            e.Price,
		OriginalQuantity: e.OriginalQuantity,
		FilledQuantity:   filled,
		PendingQuantity:  e.PendingQuantity,
		Status:           status,
		EnteredAt:        e.EnteredAt,
		Trades:           trades,
	}
}

// SubmitOrderResponse is returned when the order was accepted but has not
// reached the read-model yet.
type SubmitOrderResponse struct {
	Status  string             `json:"status"` // "accepted"
	OrderID uint64             `json:"orderId"`
	Event   cqrs.OrderAccepted `json:"event"`
}

// CancelOrderResponse acknowledges a cancellation request.
type CancelOrderResponse struct {
	Status string                     `json:"status"` // "accepted"
	Event  cqrs.CancellationRequested `json:"event"`
}

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Orders int             `json:"orders"`
}

// DepthSnapshot represents current orderbook state
type DepthSnapshot struct {
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"` // Sorted high to low
	Asks       []PriceLevel `json:"asks"` // Sorted low to high
	Timestamp  int64        `json:"timestamp"`
}

type InstrumentList struct {
	Instruments []string `json:"instruments"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Instruments int    `json:"instruments"`
	Lanes       int    `json:"lanes"`
	Streams     int    `json:"streams"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func convertLevels(levels []orderbook.PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Quantity, Orders: l.Orders}
	}
	return out
}
