package bus

import "sync"

// intake is the unbounded multi-producer queue in front of the dispatch
// loop. FIFO by admission order.
type intake struct {
	mu     sync.Mutex
	tasks  []*task
	closed bool
	signal chan struct{}
}

func newIntake() *intake {
	return &intake{signal: make(chan struct{}, 1)}
}

// push enqueues t. It fails only once the intake is closed.
func (q *intake) push(t *task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	q.wake()
	return true
}

// drain removes and returns everything queued, and whether the intake has
// been closed.
func (q *intake) drain() ([]*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out, q.closed
}

func (q *intake) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *intake) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *intake) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
