package aggregate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/uhyunpark/matchcore/pkg/broadcast"
	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

const registryShards = 64

// Listener consumes every event of every instrument. Handle is called from
// one goroutine per instrument, in publish order.
type Listener interface {
	Handle(ev cqrs.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev cqrs.Event)

func (f ListenerFunc) Handle(ev cqrs.Event) { f(ev) }

type registryShard struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// Registry manages one Book per instrument, created on first use.
// Lookups of distinct instruments only contend when they share a shard.
type Registry struct {
	shards    [registryShards]registryShard
	cfg       Config
	listeners []Listener

	wg sync.WaitGroup // listener pumps
}

// NewRegistry creates an empty registry. Every listener is subscribed to
// each Book exactly once, when the Book is created.
func NewRegistry(cfg Config, listeners ...Listener) *Registry {
	r := &Registry{cfg: cfg.withDefaults(), listeners: listeners}
	for i := range r.shards {
		r.shards[i].books = make(map[string]*Book)
	}
	return r
}

func (r *Registry) shard(instrument string) *registryShard {
	return &r.shards[xxhash.Sum64String(instrument)%registryShards]
}

// Load returns the Book of instrument, creating it if needed.
func (r *Registry) Load(instrument string) (*Book, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required: %w", ErrValidation)
	}

	s := r.shard(instrument)
	s.mu.RLock()
	b, ok := s.books[instrument]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[instrument]; ok {
		return b, nil
	}

	b = NewBook(instrument, r.cfg)
	for _, l := range r.listeners {
		r.attach(b.Subscribe(), l)
	}
	s.books[instrument] = b
	r.cfg.Logger.Infow("book_created", "instrument", instrument, "listeners", len(r.listeners))
	return b, nil
}

func (r *Registry) attach(sub *broadcast.Subscription[cqrs.Event], l Listener) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range sub.C() {
			r.deliver(l, ev)
		}
	}()
}

func (r *Registry) deliver(l Listener, ev cqrs.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.cfg.Logger.Errorw("listener_panic", "instrument", ev.Instrument(), "type", ev.Type(), "panic", p)
		}
	}()
	l.Handle(ev)
}

// Get returns an existing Book without creating one.
func (r *Registry) Get(instrument string) (*Book, bool) {
	s := r.shard(instrument)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[instrument]
	return b, ok
}

// Subscribe attaches to the event stream of instrument, creating its Book
// if needed. Only events published after the call are delivered.
func (r *Registry) Subscribe(instrument string) (*broadcast.Subscription[cqrs.Event], error) {
	b, err := r.Load(instrument)
	if err != nil {
		return nil, err
	}
	return b.Subscribe(), nil
}

// Instruments lists known instruments in lexical order.
func (r *Registry) Instruments() []string {
	var out []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for name := range s.books {
			out = append(out, name)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Count() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.books)
		s.mu.RUnlock()
	}
	return n
}

// Close ends every Book's stream and waits until listeners have consumed
// everything published before the call.
func (r *Registry) Close() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, b := range s.books {
			b.Close()
		}
		s.mu.RUnlock()
	}
	r.wg.Wait()
}
