package projection

import "sync"

// Store persists order entries. Implementations must be safe for concurrent
// use on distinct keys; the Projection serializes writes per key.
type Store interface {
	Load(orderID uint64) (OrderEntry, bool, error)
	Save(e OrderEntry) error
	Close() error
}

type memShard struct {
	mu      sync.RWMutex
	entries map[uint64]OrderEntry
}

// MemoryStore is a sharded in-process Store.
type MemoryStore struct {
	shards []memShard
}

func NewMemoryStore(shards int) *MemoryStore {
	if shards <= 0 {
		shards = 64
	}
	s := &MemoryStore{shards: make([]memShard, shards)}
	for i := range s.shards {
		s.shards[i].entries = make(map[uint64]OrderEntry)
	}
	return s
}

func (s *MemoryStore) shard(id uint64) *memShard {
	return &s.shards[id%uint64(len(s.shards))]
}

func (s *MemoryStore) Load(orderID uint64) (OrderEntry, bool, error) {
	sh := s.shard(orderID)
	sh.mu.RLock()
	e, ok := sh.entries[orderID]
	sh.mu.RUnlock()
	if !ok {
		return OrderEntry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (s *MemoryStore) Save(e OrderEntry) error {
	sh := s.shard(e.OrderID)
	sh.mu.Lock()
	sh.entries[e.OrderID] = e.Clone()
	sh.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
