// Package aggregate turns commands into sourcing events for one instrument
// and applies them to that instrument's matching engine.
package aggregate

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/broadcast"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/metrics"
	"github.com/uhyunpark/matchcore/pkg/orderbook"
	"github.com/uhyunpark/matchcore/pkg/sequence"
	"github.com/uhyunpark/matchcore/pkg/util"
)

const (
	reasonNonPositiveOrder  = "quantity and price must be positive"
	reasonNonPositiveCancel = "new quantity must be positive unless cancelling all"
)

// Config carries the collaborators shared by every Book of a process.
type Config struct {
	IDs     *sequence.Sequencer
	Clock   util.Clock
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.IDs == nil {
		c.IDs = sequence.New(0)
	}
	if c.Clock == nil {
		c.Clock = util.RealClock{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// Book is the event-sourced aggregate of a single instrument.
//
// A Book is not safe for concurrent use. The router guarantees that exactly
// one lane drives it at a time, which also keeps the engine single-threaded.
type Book struct {
	instrument string
	engine     *orderbook.Engine
	stream     *broadcast.Broadcaster[cqrs.Event]

	ids     *sequence.Sequencer
	clock   util.Clock
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewBook(instrument string, cfg Config) *Book {
	cfg = cfg.withDefaults()
	return &Book{
		instrument: instrument,
		engine:     orderbook.NewEngine(instrument),
		stream:     broadcast.New[cqrs.Event](),
		ids:        cfg.IDs,
		clock:      cfg.Clock,
		log:        cfg.Logger.With("instrument", instrument),
		metrics:    cfg.Metrics,
	}
}

func (b *Book) Instrument() string { return b.instrument }

// Engine exposes the order book for reads. Callers must be on the Book's
// lane.
func (b *Book) Engine() *orderbook.Engine { return b.engine }

// Subscribe attaches a new listener to every event published from now on.
func (b *Book) Subscribe() *broadcast.Subscription[cqrs.Event] {
	return b.stream.Subscribe()
}

// Execute routes cmd and, when it produced an appliable event, applies it.
// This is the full effect of one command.
func (b *Book) Execute(cmd cqrs.Command) (cqrs.SourcingEvent, error) {
	ev, err := b.RouteCommand(cmd)
	if err != nil {
		return nil, err
	}
	if err := b.ApplyEvent(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RouteCommand validates cmd and publishes the resulting sourcing event.
// A MakeOrder with a non-positive quantity or price publishes OrderRejected
// and still fails with a validation error.
func (b *Book) RouteCommand(cmd cqrs.Command) (cqrs.SourcingEvent, error) {
	if cmd.Instrument() != b.instrument {
		return nil, InternalError(b.instrument, cmd.CommandID(), "command routed to wrong instrument",
			fmt.Errorf("got %q", cmd.Instrument()))
	}

	switch c := cmd.(type) {
	case cqrs.MakeOrder:
		return b.makeOrder(c)
	case *cqrs.MakeOrder:
		return b.makeOrder(*c)
	case cqrs.CancelOrder:
		return b.cancelOrder(c)
	case *cqrs.CancelOrder:
		return b.cancelOrder(*c)
	default:
		return nil, InternalError(b.instrument, cmd.CommandID(), "unsupported command",
			fmt.Errorf("kind %s (%T)", cmd.Kind(), cmd))
	}
}

func (b *Book) makeOrder(c cqrs.MakeOrder) (cqrs.SourcingEvent, error) {
	if !c.Quantity.IsPositive() || !c.Price.IsPositive() {
		b.publish(cqrs.OrderRejected{
			InstrumentID: b.instrument,
			ID:           uuid.New(),
			Side:         c.Side,
			Quantity:     c.Quantity,
			Price:        c.Price,
			Reason:       reasonNonPositiveOrder,
		})
		b.log.Debugw("order_rejected", "command_id", c.ID, "qty", c.Quantity, "price", c.Price)
		return nil, validationError(b.instrument, c.ID, reasonNonPositiveOrder)
	}
	if c.Side != cqrs.Buy && c.Side != cqrs.Sell {
		return nil, validationError(b.instrument, c.ID, fmt.Sprintf("invalid side %d", int8(c.Side)))
	}

	ev := cqrs.OrderAccepted{
		InstrumentID: b.instrument,
		ID:           uuid.New(),
		OrderID:      b.ids.Next(),
		Side:         c.Side,
		Quantity:     c.Quantity,
		Price:        c.Price,
		AcceptedAt:   b.clock.Now(),
	}
	b.publish(ev)
	return ev, nil
}

func (b *Book) cancelOrder(c cqrs.CancelOrder) (cqrs.SourcingEvent, error) {
	if !c.CancelAll && !c.NewQuantity.IsPositive() {
		return nil, validationError(b.instrument, c.ID, reasonNonPositiveCancel)
	}

	ev := cqrs.CancellationRequested{
		InstrumentID: b.instrument,
		ID:           uuid.New(),
		OrderID:      c.OrderID,
		CancelAll:    c.CancelAll,
		NewQuantity:  c.NewQuantity,
	}
	b.publish(ev)
	return ev, nil
}

// ApplyEvent mutates the engine according to a sourcing event and publishes
// the resulting update events.
func (b *Book) ApplyEvent(ev cqrs.SourcingEvent) error {
	var updates []cqrs.UpdateEvent

	switch e := ev.(type) {
	case cqrs.OrderAccepted:
		updates = b.engine.Place(e.OrderID, e.AcceptedAt, e.Side, e.Price, e.Quantity)
	case cqrs.CancellationRequested:
		if e.CancelAll {
			updates = b.engine.CancelAll(e.OrderID)
		} else {
			updates = b.engine.Cancel(e.OrderID, e.NewQuantity)
		}
	default:
		return InternalError(b.instrument, uuid.Nil, "cannot apply event",
			fmt.Errorf("type %s (%T)", ev.Type(), ev))
	}

	for _, u := range updates {
		b.publish(u)
	}
	return nil
}

func (b *Book) publish(ev cqrs.Event) {
	b.stream.Publish(ev)
	b.metrics.EventPublished(string(ev.Type()))
}

// Close ends the event stream. Subscribers receive their backlog first.
func (b *Book) Close() {
	b.stream.Close()
}
