package cqrs

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	TypeOrderAccepted         EventType = "order_accepted"
	TypeOrderRejected         EventType = "order_rejected"
	TypeCancellationRequested EventType = "cancellation_requested"
	TypeOrderPlaced           EventType = "order_placed"
	TypeOrderMatched          EventType = "order_matched"
	TypeOrderCanceled         EventType = "order_canceled"
)

// Event is anything published on an instrument's event stream.
type Event interface {
	Instrument() string
	Type() EventType
}

// SourcingEvent is a committed decision of an aggregate. These are the
// values handed back to command senders.
type SourcingEvent interface {
	Event
	EventID() uuid.UUID
	sourcing()
}

// UpdateEvent describes a state change inside the matching engine. Update
// events feed the read-model and are never validated.
type UpdateEvent interface {
	Event
	update()
}

// ==============================
// Sourcing events
// ==============================

type OrderAccepted struct {
	InstrumentID string          `json:"instrument"`
	ID           uuid.UUID       `json:"eventId"`
	OrderID      uint64          `json:"orderId"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	AcceptedAt   time.Time       `json:"acceptedAt"`
}

func (e OrderAccepted) Instrument() string { return e.InstrumentID }
func (OrderAccepted) Type() EventType      { return TypeOrderAccepted }
func (e OrderAccepted) EventID() uuid.UUID { return e.ID }
func (OrderAccepted) sourcing()            {}

type OrderRejected struct {
	InstrumentID string          `json:"instrument"`
	ID           uuid.UUID       `json:"eventId"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Reason       string          `json:"reason"`
}

func (e OrderRejected) Instrument() string { return e.InstrumentID }
func (OrderRejected) Type() EventType      { return TypeOrderRejected }
func (e OrderRejected) EventID() uuid.UUID { return e.ID }
func (OrderRejected) sourcing()            {}

type CancellationRequested struct {
	InstrumentID string          `json:"instrument"`
	ID           uuid.UUID       `json:"eventId"`
	OrderID      uint64          `json:"orderId"`
	CancelAll    bool            `json:"cancelAll"`
	NewQuantity  decimal.Decimal `json:"newQuantity"`
}

func (e CancellationRequested) Instrument() string { return e.InstrumentID }
func (CancellationRequested) Type() EventType      { return TypeCancellationRequested }
func (e CancellationRequested) EventID() uuid.UUID { return e.ID }
func (CancellationRequested) sourcing()            {}

// ==============================
// Update events
// ==============================

type OrderPlaced struct {
	OrderID      uint64          `json:"orderId"`
	InstrumentID string          `json:"instrument"`
	Timestamp    time.Time       `json:"timestamp"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
}

func (e OrderPlaced) Instrument() string { return e.InstrumentID }
func (OrderPlaced) Type() EventType      { return TypeOrderPlaced }
func (OrderPlaced) update()              {}

// OrderMatched is emitted once per resting order touched by an incoming
// order. IncomingQty is what the incoming order still had left when this
// match began.
type OrderMatched struct {
	RestingID       uint64          `json:"restingId"`
	InstrumentID    string          `json:"instrument"`
	Timestamp       time.Time       `json:"timestamp"`
	IncomingID      uint64          `json:"incomingId"`
	IncomingSide    Side            `json:"incomingSide"`
	IncomingPrice   decimal.Decimal `json:"incomingPrice"`
	RestingPrice    decimal.Decimal `json:"restingPrice"`
	IncomingQty     decimal.Decimal `json:"incomingQty"`
	PrevRestingQty  decimal.Decimal `json:"prevRestingQty"`
	RestingQtyAfter decimal.Decimal `json:"restingQtyAfter"`
}

func (e OrderMatched) Instrument() string { return e.InstrumentID }
func (OrderMatched) Type() EventType      { return TypeOrderMatched }
func (OrderMatched) update()              {}

// Filled is the quantity exchanged by this match.
func (e OrderMatched) Filled() decimal.Decimal {
	return e.PrevRestingQty.Sub(e.RestingQtyAfter)
}

type OrderCanceled struct {
	OrderID      uint64          `json:"orderId"`
	InstrumentID string          `json:"instrument"`
	Side         Side            `json:"side"`
	CanceledQty  decimal.Decimal `json:"canceledQty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
}

func (e OrderCanceled) Instrument() string { return e.InstrumentID }
func (OrderCanceled) Type() EventType      { return TypeOrderCanceled }
func (OrderCanceled) update()              {}
