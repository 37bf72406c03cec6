// Package projection maintains the queryable order read-model. It is fed
// exclusively by update events and is eventually consistent with the
// command side.
package projection

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/metrics"
)

const lockStripes = 256

type Projection struct {
	store   Store
	locks   [lockStripes]sync.Mutex
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(store Store, log *zap.SugaredLogger, m *metrics.Metrics) *Projection {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Projection{store: store, log: log, metrics: m}
}

// Get returns a snapshot of the entry for orderID.
func (p *Projection) Get(orderID uint64) (OrderEntry, bool) {
	e, ok, err := p.store.Load(orderID)
	if err != nil {
		p.log.Errorw("projection_load_failed", "order_id", orderID, "err", err)
		return OrderEntry{}, false
	}
	if !ok {
		return OrderEntry{}, false
	}
	return e.Clone(), true
}

// Handle consumes any stream event, ignoring sourcing events. Failures are
// logged; the stream keeps flowing.
func (p *Projection) Handle(ev cqrs.Event) {
	u, ok := ev.(cqrs.UpdateEvent)
	if !ok {
		return
	}
	if err := p.Apply(u); err != nil {
		p.log.Errorw("projection_apply_failed", "instrument", ev.Instrument(), "type", ev.Type(), "err", err)
	}
}

func (p *Projection) Apply(ev cqrs.UpdateEvent) error {
	switch e := ev.(type) {
	case cqrs.OrderPlaced:
		return p.placed(e)
	case cqrs.OrderMatched:
		return p.matched(e)
	case cqrs.OrderCanceled:
		return p.canceled(e)
	default:
		return fmt.Errorf("unsupported update event %s", ev.Type())
	}
}

// update runs fn on the entry for id under its stripe lock. fn reports
// whether the entry should be written back.
func (p *Projection) update(id uint64, fn func(e *OrderEntry, exists bool) bool) error {
	mu := &p.locks[id%lockStripes]
	mu.Lock()
	defer mu.Unlock()

	e, exists, err := p.store.Load(id)
	if err != nil {
		return fmt.Errorf("load order %d: %w", id, err)
	}
	if !fn(&e, exists) {
		return nil
	}
	if err := p.store.Save(e); err != nil {
		return fmt.Errorf("save order %d: %w", id, err)
	}
	if !exists {
		p.metrics.ProjectionEntryAdded()
	}
	return nil
}

func (p *Projection) placed(ev cqrs.OrderPlaced) error {
	return p.update(ev.OrderID, func(e *OrderEntry, exists bool) bool {
		if exists {
			return false
		}
		*e = OrderEntry{
			OrderID:          ev.OrderID,
			EnteredAt:        ev.Timestamp,
			Instrument:       ev.InstrumentID,
			Price:            ev.Price,
			OriginalQuantity: ev.Quantity,
			Side:             ev.Side,
			PendingQuantity:  ev.Quantity,
		}
		return true
	})
}

func (p *Projection) matched(ev cqrs.OrderMatched) error {
	consumed := ev.Filled()

	err := p.update(ev.RestingID, func(e *OrderEntry, exists bool) bool {
		if !exists {
			return false
		}
		e.Trades = append(e.Trades, Trade{CounterpartyID: ev.IncomingID, Quantity: consumed, Price: ev.RestingPrice})
		e.PendingQuantity = ev.RestingQtyAfter
		return true
	})
	if err != nil {
		return err
	}

	return p.update(ev.IncomingID, func(e *OrderEntry, exists bool) bool {
		if !exists {
			*e = OrderEntry{
				OrderID:          ev.IncomingID,
				EnteredAt:        ev.Timestamp,
				Instrument:       ev.InstrumentID,
				Price:            ev.IncomingPrice,
				OriginalQuantity: ev.IncomingQty,
				Side:             ev.IncomingSide,
			}
		}
		e.Trades = append(e.Trades, Trade{CounterpartyID: ev.RestingID, Quantity: consumed, Price: ev.RestingPrice})
		e.PendingQuantity = ev.IncomingQty.Sub(consumed)
		return true
	})
}

func (p *Projection) canceled(ev cqrs.OrderCanceled) error {
	return p.update(ev.OrderID, func(e *OrderEntry, exists bool) bool {
		if !exists {
			return false
		}
		e.PendingQuantity = ev.RemainingQty
		return true
	})
}

// Close releases the underlying store.
func (p *Projection) Close() error {
	return p.store.Close()
}
