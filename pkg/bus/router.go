// Package bus routes commands to instrument aggregates.
//
// Commands for the same instrument run one at a time, in submission order,
// on that instrument's lane. Lanes of different instruments run
// concurrently, bounded by a weighted semaphore.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/uhyunpark/matchcore/pkg/aggregate"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
	"github.com/uhyunpark/matchcore/pkg/metrics"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("router closed")

const (
	DefaultConcurrency = 32

	// A lane gives up its concurrency slot after this many commands so
	// that one busy instrument cannot starve the others.
	laneBatch = 64

	kindQuery = "query"
)

// Loader resolves the aggregate for an instrument. aggregate.Registry
// implements it.
type Loader interface {
	Load(instrument string) (*aggregate.Book, error)
}

type Config struct {
	Concurrency int64
	Logger      *zap.SugaredLogger
	Metrics     *metrics.Metrics
}

type task struct {
	key  string
	kind string
	id   uuid.UUID
	run  func(*aggregate.Book) (cqrs.SourcingEvent, error)
	fut  *Future
}

type lane struct {
	key   string
	queue []*task
}

type Router struct {
	books   Loader
	sem     *semaphore.Weighted
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	intake *intake

	// lanes is shared by the dispatch loop and the lanes themselves.
	lanesMu sync.Mutex
	lanes   map[string]*lane
	running sync.WaitGroup

	stopped chan struct{}
}

// NewRouter starts the dispatch loop.
func NewRouter(books Loader, cfg Config) *Router {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	r := &Router{
		books:   books,
		sem:     semaphore.NewWeighted(cfg.Concurrency),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		intake:  newIntake(),
		lanes:   make(map[string]*lane),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

// Submit enqueues cmd and returns its result slot. It never waits for the
// command to run.
func (r *Router) Submit(ctx context.Context, cmd cqrs.Command) (*Future, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command: %w", aggregate.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := &task{
		key:  cmd.Instrument(),
		kind: cmd.Kind(),
		id:   cmd.CommandID(),
		run:  func(b *aggregate.Book) (cqrs.SourcingEvent, error) { return b.Execute(cmd) },
		fut:  newFuture(),
	}
	if !r.intake.push(t) {
		return nil, ErrClosed
	}
	r.metrics.SetIntakeDepth(r.intake.Len())
	return t.fut, nil
}

// Send submits cmd and waits for its result.
func (r *Router) Send(ctx context.Context, cmd cqrs.Command) (cqrs.SourcingEvent, error) {
	fut, err := r.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return fut.Await(ctx)
}

// Query runs fn on the lane of instrument, ordered with the commands
// submitted before it. fn may read the Book's engine freely.
func (r *Router) Query(ctx context.Context, instrument string, fn func(*aggregate.Book) error) error {
	t := &task{
		key:  instrument,
		kind: kindQuery,
		id:   uuid.Nil,
		run: func(b *aggregate.Book) (cqrs.SourcingEvent, error) {
			return nil, fn(b)
		},
		fut: newFuture(),
	}
	if !r.intake.push(t) {
		return ErrClosed
	}
	_, err := t.fut.Await(ctx)
	return err
}

// Close stops accepting commands, lets every queued command finish and
// waits for the lanes to exit, or for ctx to end.
func (r *Router) Close(ctx context.Context) error {
	r.intake.close()
	select {
	case <-r.stopped:
		r.log.Infow("router_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("router shutdown: %w", ctx.Err())
	}
}

func (r *Router) loop() {
	defer close(r.stopped)

	for {
		batch, closed := r.intake.drain()
		if len(batch) > 0 {
			r.metrics.SetIntakeDepth(0)
		}
		for _, t := range batch {
			r.dispatch(t)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			r.running.Wait()
			return
		}
		<-r.intake.signal
	}
}

// dispatch appends t to its lane, starting the lane if it is idle.
func (r *Router) dispatch(t *task) {
	r.lanesMu.Lock()
	l, ok := r.lanes[t.key]
	if !ok {
		l = &lane{key: t.key}
		r.lanes[t.key] = l
	}
	l.queue = append(l.queue, t)
	r.lanesMu.Unlock()

	if !ok {
		r.running.Add(1)
		go r.drive(l)
	}
}

// next pops the head of l, or retires l when it is empty.
func (r *Router) next(l *lane) (*task, bool) {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()
	if len(l.queue) == 0 {
		delete(r.lanes, l.key)
		return nil, false
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t, true
}

func (r *Router) drive(l *lane) {
	defer r.running.Done()

	for {
		// Acquire never fails with a background context.
		_ = r.sem.Acquire(context.Background(), 1)
		r.metrics.LaneStarted()

		n := 0
		for ; n < laneBatch; n++ {
			t, ok := r.next(l)
			if !ok {
				r.metrics.LaneStopped()
				r.sem.Release(1)
				return
			}
			r.execute(t)
		}

		r.metrics.LaneStopped()
		r.sem.Release(1)
	}
}

func (r *Router) execute(t *task) {
	start := time.Now()
	ev, err := r.run(t)
	took := time.Since(start)

	if err != nil {
		if errors.Is(err, aggregate.ErrInternal) {
			r.log.Errorw("command_failed", "instrument", t.key, "kind", t.kind, "command_id", t.id, "err", err)
		} else {
			r.log.Debugw("command_refused", "instrument", t.key, "kind", t.kind, "command_id", t.id, "err", err)
		}
	}
	if t.kind != kindQuery {
		r.metrics.CommandDone(t.kind, took, err)
	}
	t.fut.settle(ev, err)
}

// run executes t, turning panics into internal errors.
func (r *Router) run(t *task) (ev cqrs.SourcingEvent, err error) {
	defer func() {
		if p := recover(); p != nil {
			ev = nil
			err = aggregate.InternalError(t.key, t.id, "panic while handling "+t.kind, fmt.Errorf("%v", p))
		}
	}()

	book, err := r.books.Load(t.key)
	if err != nil {
		if errors.Is(err, aggregate.ErrValidation) {
			return nil, err
		}
		return nil, aggregate.InternalError(t.key, t.id, "load aggregate", err)
	}
	return t.run(book)
}

// Lanes returns the number of instruments with queued or running work.
func (r *Router) Lanes() int {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()
	return len(r.lanes)
}
