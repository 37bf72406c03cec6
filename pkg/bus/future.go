package bus

import (
	"context"
	"fmt"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

// Future is the one-shot result slot of a submitted command. The result is
// written exactly once, whether or not anybody is waiting for it.
type Future struct {
	done chan struct{}
	ev   cqrs.SourcingEvent
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(ev cqrs.SourcingEvent, err error) {
	f.ev, f.err = ev, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the command finished or ctx ends. Giving up on the
// wait does not cancel the command.
func (f *Future) Await(ctx context.Context) (cqrs.SourcingEvent, error) {
	select {
	case <-f.done:
		return f.ev, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("await result: %w", ctx.Err())
	}
}
