package loadgen

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

const recentWindow = 100

type placed struct {
	instrument string
	orderID    uint64
}

// Generator creates random trading commands for load testing
type Generator struct {
	instruments []string
	recent      []placed // last accepted orders, oldest first
	rng         *rand.Rand

	orders  int
	cancels int
}

func NewGenerator(instruments []string, seed int64) *Generator {
	return &Generator{
		instruments: instruments,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Order creates a random limit order.
func (g *Generator) Order() cqrs.MakeOrder {
	instrument := g.instruments[g.rng.Intn(len(g.instruments))]

	side := cqrs.Buy
	if g.rng.Intn(2) == 1 {
		side = cqrs.Sell
	}

	// Price around 500.00 (±5%), in cents
	cents := 50000 + g.rng.Intn(5000) - 2500

	// 0.01 to 1.00
	lots := g.rng.Intn(100) + 1

	g.orders++
	return cqrs.MakeOrder{
		InstrumentID: instrument,
		ID:           uuid.New(),
		Side:         side,
		Quantity:     decimal.New(int64(lots), -2),
		Price:        decimal.New(int64(cents), -2),
	}
}

// Cancel targets one of the recently accepted orders: half of the time a
// full cancel, otherwise a resize to a random small quantity. It reports
// false while no order has been accepted yet.
func (g *Generator) Cancel() (cqrs.CancelOrder, bool) {
	if len(g.recent) == 0 {
		return cqrs.CancelOrder{}, false
	}
	target := g.recent[g.rng.Intn(len(g.recent))]

	cmd := cqrs.CancelOrder{
		InstrumentID: target.instrument,
		ID:           uuid.New(),
		OrderID:      target.orderID,
		CancelAll:    g.rng.Intn(2) == 0,
	}
	if !cmd.CancelAll {
		cmd.NewQuantity = decimal.New(int64(g.rng.Intn(50)+1), -2)
	}
	g.cancels++
	return cmd, true
}

// Mix creates a random command (90% orders, 10% cancels)
func (g *Generator) Mix() cqrs.Command {
	if g.rng.Intn(100) >= 90 {
		if c, ok := g.Cancel(); ok {
			return c
		}
	}
	return g.Order()
}

func (g *Generator) Batch(count int) []cqrs.Command {
	batch := make([]cqrs.Command, count)
	for i := range batch {
		batch[i] = g.Mix()
	}
	return batch
}

// Accepted records an order id that later cancels may target.
func (g *Generator) Accepted(ev cqrs.OrderAccepted) {
	g.recent = append(g.recent, placed{instrument: ev.InstrumentID, orderID: ev.OrderID})
	if len(g.recent) > recentWindow {
		g.recent = g.recent[len(g.recent)-recentWindow:]
	}
}

type Stats struct {
	Orders  int
	Cancels int
}

func (g *Generator) Stats() Stats {
	return Stats{Orders: g.orders, Cancels: g.cancels}
}
