package cqrs

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int8(s))
	}
}

// Opposite returns the side an incoming order of side s matches against.
func (s Side) Opposite() Side { return -s }

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("invalid side %d", int8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Command is an instruction addressed to exactly one instrument aggregate.
type Command interface {
	Instrument() string
	CommandID() uuid.UUID
	Kind() string
}

// MakeOrder asks the instrument to accept a new limit order.
type MakeOrder struct {
	InstrumentID string          `json:"instrument"`
	ID           uuid.UUID       `json:"commandId"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

func (c MakeOrder) Instrument() string   { return c.InstrumentID }
func (c MakeOrder) CommandID() uuid.UUID { return c.ID }
func (MakeOrder) Kind() string           { return "make_order" }

// CancelOrder shrinks a resting order to NewQuantity, or removes it when
// CancelAll is set.
type CancelOrder struct {
	InstrumentID string          `json:"instrument"`
	ID           uuid.UUID       `json:"commandId"`
	OrderID      uint64          `json:"orderId"`
	CancelAll    bool            `json:"cancelAll"`
	NewQuantity  decimal.Decimal `json:"newQuantity"`
}

func (c CancelOrder) Instrument() string   { return c.InstrumentID }
func (c CancelOrder) CommandID() uuid.UUID { return c.ID }
func (CancelOrder) Kind() string           { return "cancel_order" }
