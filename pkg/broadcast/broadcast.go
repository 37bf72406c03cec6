// Package broadcast is a hot multi-subscriber fan-out.
//
// Every subscription owns an unbounded queue and a pump goroutine, so a slow
// subscriber never blocks Publish or any other subscriber, and no event is
// dropped. Subscribers only see events published after they subscribed.
package broadcast

import "sync"

type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new cursor at the current head of the stream.
// Subscribing to a closed broadcaster returns an already-finished
// subscription.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		b:      b,
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		s.draining = true
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish appends v to every live subscription. It never blocks on
// subscribers.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(v)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends the stream. Subscribers still receive everything queued before
// Close, after which their channels are closed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for s := range subs {
		s.drain()
	}
}

func (b *Broadcaster[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one independent cursor over a Broadcaster.
type Subscription[T any] struct {
	b *Broadcaster[T]

	mu       sync.Mutex
	queue    []T
	draining bool

	notify chan struct{}
	out    chan T
	done   chan struct{}
	once   sync.Once
}

// C delivers events in publish order. It is closed after Close or after the
// broadcaster is closed and the backlog is drained.
func (s *Subscription[T]) C() <-chan T { return s.out }

// Close detaches the subscription, discarding any backlog.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.done)
	})
}

// Pending returns the number of queued, undelivered events.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			draining := s.draining
			s.mu.Unlock()
			if draining {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
