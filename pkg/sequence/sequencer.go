package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing ids. One Sequencer is shared by
// every instrument so that order ids are unique process-wide.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first Next() returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
